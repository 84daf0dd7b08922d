package core

// Header names the host uses to classify events.
const (
	HeaderEventName     = "Event-Name"
	HeaderEventSubclass = "Event-Subclass"
)

// Header is a single name/value pair of an event record.
type Header struct {
	Name  string
	Value string
}

// Record is one event raised by the event source: an ordered list of
// headers plus an optional raw body. A nil Body means the event has none.
//
// Records are owned by the source. Handlers must treat them as read-only
// and must not keep a reference after they return.
type Record struct {
	Headers []Header
	Body    []byte
}

// NewRecord builds a Record from alternating name/value pairs.
// A trailing name without a value gets an empty value.
//
//	rec := core.NewRecord("Event-Name", "CHANNEL_CREATE", "Unique-ID", "abc-123")
func NewRecord(kv ...string) Record {
	headers := make([]Header, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		h := Header{Name: kv[i]}
		if i+1 < len(kv) {
			h.Value = kv[i+1]
		}
		headers = append(headers, h)
	}
	return Record{Headers: headers}
}

// Get returns the value of the first header with the given name.
func (r Record) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Class returns the Event-Name header, or "" when absent.
func (r Record) Class() string {
	v, _ := r.Get(HeaderEventName)
	return v
}

// Subclass returns the Event-Subclass header, or "" when absent.
func (r Record) Subclass() string {
	v, _ := r.Get(HeaderEventSubclass)
	return v
}

// Filter selects events by class and subclass pattern. Patterns use the
// DefaultMatcher syntax, so "#" matches anything.
type Filter struct {
	Class    string
	Subclass string
}

// FilterAll matches every event of every subclass.
var FilterAll = Filter{Class: "#", Subclass: "#"}

// Matches reports whether rec passes the filter using m.
func (f Filter) Matches(m TopicMatcher, rec Record) bool {
	return m.Match(f.Class, rec.Class()) && m.Match(f.Subclass, rec.Subclass())
}
