package trial

import "time"

// Field names a mergeable attribute of the conversation record.
type Field string

const (
	FieldName          Field = "name"
	FieldAge           Field = "age"
	FieldLevel         Field = "level"
	FieldDesiredDate   Field = "desired_date"
	FieldDesiredTime   Field = "desired_time"
	FieldConfirmed     Field = "confirmed"
	FieldWantsToCancel Field = "wants_to_cancel"
)

// requiredCustomerFields is the fixed set collect_info must gather, in prompt order.
var requiredCustomerFields = []Field{FieldName, FieldAge, FieldLevel}

// Record is the persistent per-conversation state carried across turns.
type Record struct {
	ConversationID string    `json:"conversation_id"`
	CustomerRef    string    `json:"customer_ref"`
	Stage          Stage     `json:"stage"`
	Name           *string   `json:"customer_name,omitempty"`
	Age            *int      `json:"customer_age,omitempty"`
	Level          *Level    `json:"customer_level,omitempty"`
	DesiredDate    *string   `json:"desired_date,omitempty"`
	DesiredTime    *string   `json:"desired_time,omitempty"`
	Confirmed      *bool     `json:"confirmed,omitempty"`
	WantsToCancel  *bool     `json:"wants_to_cancel,omitempty"`
	BookingCreated bool      `json:"booking_created"`
	BookingID      string    `json:"booking_id,omitempty"`
	Output         string    `json:"output"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// NewRecord creates the record for the first turn of a conversation.
func NewRecord(conversationID, customerRef string) Record {
	return Record{
		ConversationID: conversationID,
		CustomerRef:    customerRef,
		Stage:          StageCollectInfo,
	}
}

// Clone returns a deep copy so handlers never mutate the caller's record.
func (r Record) Clone() Record {
	out := r
	out.Name = clonePtr(r.Name)
	out.Age = clonePtr(r.Age)
	out.Level = clonePtr(r.Level)
	out.DesiredDate = clonePtr(r.DesiredDate)
	out.DesiredTime = clonePtr(r.DesiredTime)
	out.Confirmed = clonePtr(r.Confirmed)
	out.WantsToCancel = clonePtr(r.WantsToCancel)
	return out
}

// MissingCustomerFields lists the required customer fields not yet known, in prompt order.
func (r Record) MissingCustomerFields() []Field {
	missing := make([]Field, 0, len(requiredCustomerFields))
	for _, f := range requiredCustomerFields {
		switch f {
		case FieldName:
			if r.Name == nil || *r.Name == "" {
				missing = append(missing, f)
			}
		case FieldAge:
			if r.Age == nil || *r.Age <= 0 {
				missing = append(missing, f)
			}
		case FieldLevel:
			if r.Level == nil || *r.Level == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Snapshot is the read-only view of a record handed to the external ports.
type Snapshot struct {
	Stage          Stage  `json:"stage"`
	Name           string `json:"customer_name,omitempty"`
	Age            int    `json:"customer_age,omitempty"`
	Level          Level  `json:"customer_level,omitempty"`
	DesiredDate    string `json:"desired_date,omitempty"`
	DesiredTime    string `json:"desired_time,omitempty"`
	Confirmed      *bool  `json:"confirmed,omitempty"`
	BookingCreated bool   `json:"booking_created"`
}

// Snapshot returns the port view of the record.
func (r Record) Snapshot() Snapshot {
	return Snapshot{
		Stage:          r.Stage,
		Name:           deref(r.Name),
		Age:            deref(r.Age),
		Level:          deref(r.Level),
		DesiredDate:    deref(r.DesiredDate),
		DesiredTime:    deref(r.DesiredTime),
		Confirmed:      clonePtr(r.Confirmed),
		BookingCreated: r.BookingCreated,
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func ptr[T any](v T) *T {
	return &v
}
