package outbox

const entryMatchedSchema = `{
  "type": "object",
  "title": "PlanEntryMatched",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "ride_id": {"type": "string"},
    "scheduled_date": {"type": "string", "format": "date"},
    "workout_id": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "ride_id", "scheduled_date", "workout_id", "completed_at"],
  "additionalProperties": false
}`

const entryCreatedSchema = `{
  "type": "object",
  "title": "PlanEntryCreated",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "ride_id": {"type": "string"},
    "scheduled_date": {"type": "string", "format": "date"},
    "order_index": {"type": "integer"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "ride_id", "scheduled_date", "order_index", "created_at"],
  "additionalProperties": false
}`
