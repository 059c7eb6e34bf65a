package core

// Logger is any service that can log and report app events.
// expected args: error, Fields, *http.Request, or the acting user (reported as the "person").
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the acting user in logs.
type Person struct {
	ID    string
	Name  string
	Email string
}

// Fields is extra context attached to a log entry, e.g. the payment or fee assignment a request was about.
type Fields map[string]interface{}
