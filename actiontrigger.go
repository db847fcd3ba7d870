package clicker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ryanhamamura/clicker/h"
)

// ActionTrigger binds a registered action to DOM events.
type ActionTrigger struct {
	id string
}

// ID returns the action id used in the /_action/{id} route.
func (a *ActionTrigger) ID() string {
	return a.id
}

// ActionTriggerOption configures the generated event expression.
type ActionTriggerOption interface {
	apply(*triggerOpts)
}

type signalAssign struct {
	signalID string
	value    string
}

type triggerOpts struct {
	assigns []signalAssign
}

type withSignalOpt signalAssign

func (o withSignalOpt) apply(opts *triggerOpts) {
	opts.assigns = append(opts.assigns, signalAssign(o))
}

// WithSignal sets sig to value in the browser right before the action
// request is sent, so the UI can react without waiting for the server.
func WithSignal(sig *Signal, value any) ActionTriggerOption {
	return withSignalOpt{signalID: sig.ID(), value: jsLiteral(value)}
}

func jsLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", `\'`) + "'"
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "null"
		}
		return string(b)
	}
}

func actionURL(id string) string {
	return fmt.Sprintf("@get('/_action/%s')", id)
}

func buildOnExpr(base string, options ...ActionTriggerOption) string {
	var opts triggerOpts
	for _, opt := range options {
		opt.apply(&opts)
	}
	var b strings.Builder
	for _, a := range opts.assigns {
		fmt.Fprintf(&b, "$%s=%s;", a.signalID, a.value)
	}
	b.WriteString(base)
	return b.String()
}

// OnClick returns the data-on:click attribute firing the action.
func (a *ActionTrigger) OnClick(options ...ActionTriggerOption) h.H {
	return h.Data("on:click", buildOnExpr(actionURL(a.id), options...))
}
