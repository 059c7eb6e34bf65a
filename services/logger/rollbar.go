package logsvc

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/feeledger/core"
)

// RollbarLogger writes every entry to a std logger, and reports it to Rollbar once enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetCustom(map[string]interface{}{"app": conf.AppName})
	rollbar.SetEnabled(false)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry sorts the args of one log call.
type entry struct {
	msg    string
	err    error
	person *core.Person
	fields core.Fields
	req    *http.Request
	extra  []interface{}
}

func newEntry(msg string, args []interface{}) entry {
	e := entry{msg: msg, fields: core.Fields{}}
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Person:
			if e.person == nil && a != (core.Person{}) { // only one person per report
				e.person = &a
			}
		case core.Fields:
			for k, v := range a {
				e.fields[k] = v
			}
		case map[string]interface{}:
			for k, v := range a {
				e.fields[k] = v
			}
		case *http.Request:
			e.req = a
		case error:
			if e.err == nil {
				e.err = a
				break
			}
			e.extra = append(e.extra, a)
		default:
			e.extra = append(e.extra, a)
		}
	}
	return e
}

// rollbarArgs only passes the types rollbar knows; the rest goes to the custom data.
func (e entry) rollbarArgs() []interface{} {
	args := []interface{}{e.msg}
	if e.err != nil {
		args = append(args, e.err)
	}
	custom := make(map[string]interface{}, len(e.fields)+1)
	for k, v := range e.fields {
		custom[k] = v
	}
	if len(e.extra) > 0 {
		custom["args"] = fmt.Sprint(e.extra...)
	}
	if len(custom) > 0 {
		args = append(args, custom)
	}
	if e.req != nil {
		args = append(args, e.req)
	}
	return args
}

// String renders the entry on one line: msg key=value... (keys sorted).
func (e entry) String() string {
	var b strings.Builder
	b.WriteString(e.msg)

	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	if e.req != nil {
		fmt.Fprintf(&b, " request=%q", e.req.Method+" "+e.req.URL.Path)
	}
	if e.person != nil {
		fmt.Fprintf(&b, " user=%s", e.person.Email)
	}
	return b.String()
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	e := newEntry(msg, args)
	if e.person != nil {
		rollbar.SetPerson(e.person.ID, e.person.Name, e.person.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, e.rollbarArgs()...)

	l.std.Println(e)
	if e.err != nil {
		l.std.Printf("%+v\n", e.err)
	}
	for _, arg := range e.extra {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
