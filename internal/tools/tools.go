// Package tools exposes the query and mutation operations to a function
// calling model: declarations describing each operation, and a dispatcher
// running a call by name and always producing a JSON-ready result.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
	"edtassist/internal/mutation"
	"edtassist/internal/query"
	"edtassist/internal/store"
)

// Operation names as seen by the model.
const (
	CoursesByDateRange = "get_courses_by_date_range"
	CoursesBySubject   = "get_courses_by_subject"
	FreeTimeSlots      = "get_free_time_slots"
	NextCourse         = "get_next_course"
	AddEvent           = "add_event_to_calendar"
	RemoveRevisions    = "remove_revision_events"
)

// userIDArg is supplied by the host, never by the model.
const userIDArg = "user_id"

// Args are the named arguments of one call.
type Args map[string]any

// String returns the argument as a trimmed string; non-string values are
// formatted.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// resultStyle picks how failures are reported: query results carry a
// status field, mutation results a success flag.
type resultStyle int

const (
	statusStyle resultStyle = iota
	successStyle
)

type operation struct {
	decl  *genai.FunctionDeclaration
	style resultStyle
	run   func(d *Dispatcher, userID string, args Args) (any, error)
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	if props == nil {
		props = map[string]*genai.Schema{}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

var operations = []operation{
	{
		decl: &genai.FunctionDeclaration{
			Name:        CoursesByDateRange,
			Description: "List the courses starting within a date range, both ends inclusive. A date without time covers the whole day.",
			Parameters: object(map[string]*genai.Schema{
				"start_date": str("Range start, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"),
				"end_date":   str("Range end, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"),
			}, "start_date", "end_date"),
		},
		style: statusStyle,
		run: func(d *Dispatcher, user string, a Args) (any, error) {
			return d.query.CoursesByDateRange(user, a.String("start_date"), a.String("end_date"))
		},
	},
	{
		decl: &genai.FunctionDeclaration{
			Name:        CoursesBySubject,
			Description: "List the courses whose title contains a subject name, ignoring case and accents.",
			Parameters: object(map[string]*genai.Schema{
				"subject": str("Subject or part of a course title, for example \"Mathématiques\""),
			}, "subject"),
		},
		style: statusStyle,
		run: func(d *Dispatcher, user string, a Args) (any, error) {
			return d.query.CoursesBySubject(user, a.String("subject"))
		},
	},
	{
		decl: &genai.FunctionDeclaration{
			Name:        FreeTimeSlots,
			Description: "Find the free time slots between courses on one day, within working hours.",
			Parameters: object(map[string]*genai.Schema{
				"date": str("Day to inspect, YYYY-MM-DD"),
			}, "date"),
		},
		style: statusStyle,
		run: func(d *Dispatcher, user string, a Args) (any, error) {
			return d.query.FreeTimeSlots(user, a.String("date"))
		},
	},
	{
		decl: &genai.FunctionDeclaration{
			Name:        NextCourse,
			Description: "Get the next upcoming course with the time remaining before it and the following courses.",
			Parameters:  object(nil),
		},
		style: statusStyle,
		run: func(d *Dispatcher, user string, _ Args) (any, error) {
			return d.query.NextCourse(user)
		},
	},
	{
		decl: &genai.FunctionDeclaration{
			Name:        AddEvent,
			Description: "Add a revision session to the student's calendar.",
			Parameters: object(map[string]*genai.Schema{
				"title":       str("Title of the revision session"),
				"start_date":  str("Start, YYYY-MM-DDTHH:MM:SS"),
				"end_date":    str("End, YYYY-MM-DDTHH:MM:SS, after start_date"),
				"description": str("Optional notes"),
			}, "title", "start_date", "end_date"),
		},
		style: successStyle,
		run: func(d *Dispatcher, user string, a Args) (any, error) {
			return d.mutation.AddRevision(user, a.String("title"), a.String("start_date"), a.String("end_date"), a.String("description"))
		},
	},
	{
		decl: &genai.FunctionDeclaration{
			Name:        RemoveRevisions,
			Description: "Remove every revision session previously added by the assistant.",
			Parameters:  object(nil),
		},
		style: successStyle,
		run: func(d *Dispatcher, user string, _ Args) (any, error) {
			return d.mutation.RemoveAIRevisions(user)
		},
	},
}

func lookup(name string) (operation, bool) {
	for _, op := range operations {
		if op.decl.Name == name {
			return op, true
		}
	}
	return operation{}, false
}

// Has reports whether name is a known operation.
func Has(name string) bool {
	_, ok := lookup(name)
	return ok
}

// Names returns the operation names in declaration order.
func Names() []string {
	out := make([]string, 0, len(operations))
	for _, op := range operations {
		out = append(out, op.decl.Name)
	}
	return out
}

// Declarations returns the operations as one Gemini tool.
func Declarations() *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(operations))
	for _, op := range operations {
		decls = append(decls, op.decl)
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

// Param describes one argument for listings.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Info describes one operation for listings.
type Info struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Describe lists the operations with their arguments sorted by name.
func Describe() []Info {
	out := make([]Info, 0, len(operations))
	for _, op := range operations {
		info := Info{Name: op.decl.Name, Description: op.decl.Description, Params: []Param{}}
		required := map[string]bool{}
		for _, r := range op.decl.Parameters.Required {
			required[r] = true
		}
		for name, s := range op.decl.Parameters.Properties {
			info.Params = append(info.Params, Param{Name: name, Description: s.Description, Required: required[name]})
		}
		sort.Slice(info.Params, func(i, j int) bool { return info.Params[i].Name < info.Params[j].Name })
		out = append(out, info)
	}
	return out
}

// Hooks observe dispatched calls.
type Hooks struct {
	// AfterMutation runs after a successful mutating call.
	AfterMutation func(userID string)
}

// Dispatcher runs operations by name for one host-supplied user.
type Dispatcher struct {
	query    *query.Engine
	mutation *mutation.Engine
	hooks    Hooks
}

// NewDispatcher returns a dispatcher over the two engines.
func NewDispatcher(q *query.Engine, m *mutation.Engine, hooks Hooks) *Dispatcher {
	return &Dispatcher{query: q, mutation: m, hooks: hooks}
}

// Call runs the named operation for userID. It never fails: unknown names,
// missing arguments and operation errors all come back as result objects
// carrying a display message.
func (d *Dispatcher) Call(ctx context.Context, userID, name string, args Args) any {
	op, ok := lookup(name)
	if !ok {
		appLog.Warn("unknown function call", "name", name)
		return errorResult(statusStyle, fmt.Sprintf("unknown function %q", name))
	}
	if err := ctx.Err(); err != nil {
		return errorResult(op.style, err.Error())
	}
	args = maps.Clone(args)
	if args == nil {
		args = Args{}
	}
	if _, ok := args[userIDArg]; ok {
		delete(args, userIDArg)
		appLog.Info("user_id dropped from call arguments", "name", name)
	}
	for _, req := range op.decl.Parameters.Required {
		if args.String(req) == "" {
			return errorResult(op.style, (&model.ValidationError{Field: req, Msg: "required argument is missing"}).Error())
		}
	}

	appLog.Debug("function call", "name", name, "user", userID)
	res, err := op.run(d, userID, args)
	if err != nil {
		appLog.Warn("function call failed", "name", name, "user", userID, "reason", err.Error())
		return errorResult(op.style, message(err))
	}
	if op.style == successStyle && d.hooks.AfterMutation != nil {
		if uid, nerr := store.NormalizeUserID(userID); nerr == nil {
			d.hooks.AfterMutation(uid)
		}
	}
	return res
}

// CallJSON decodes a JSON argument object and runs Call.
func (d *Dispatcher) CallJSON(ctx context.Context, userID, name string, raw []byte) any {
	args := Args{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			style := statusStyle
			if op, ok := lookup(name); ok {
				style = op.style
			}
			return errorResult(style, "arguments must be a JSON object: "+err.Error())
		}
	}
	return d.Call(ctx, userID, name, args)
}

// CallGemini answers a model function call.
func (d *Dispatcher) CallGemini(ctx context.Context, userID string, call genai.FunctionCall) genai.FunctionResponse {
	res := d.Call(ctx, userID, call.Name, Args(call.Args))
	return genai.FunctionResponse{Name: call.Name, Response: ToMap(res)}
}

// ToMap converts a result into a generic JSON object.
func ToMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"status": query.StatusError, "message": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{"status": query.StatusError, "message": err.Error()}
	}
	return out
}

func errorResult(style resultStyle, msg string) map[string]any {
	if style == successStyle {
		return map[string]any{"success": false, "message": msg}
	}
	return map[string]any{"status": query.StatusError, "message": msg}
}

func message(err error) string {
	var ve *model.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "No timetable found for this user; fetch it first"
	case errors.Is(err, store.ErrEmptyUser), errors.Is(err, store.ErrInvalidUser):
		return "Invalid user identifier: " + err.Error()
	case errors.As(err, &ve):
		return ve.Error()
	default:
		return err.Error()
	}
}
