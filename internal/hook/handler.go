// Package hook holds the handler registry the dispatcher fans events out to.
package hook

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Handler is the single shape every registered handler is normalized to.
type Handler interface {
	Handle(ctx context.Context, ev *domain.Event, hc *Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *domain.Event, hc *Context) error

func (f HandlerFunc) Handle(ctx context.Context, ev *domain.Event, hc *Context) error {
	return f(ctx, ev, hc)
}

// normalize converts one of the supported handler shapes into a Handler.
// It runs once per registration, never per call.
func normalize(fn any) (Handler, error) {
	switch h := fn.(type) {
	case nil:
		return nil, fmt.Errorf("handler is nil")
	case Handler:
		return h, nil
	case func(context.Context, *domain.Event, *Context) error:
		return HandlerFunc(h), nil
	case func(*domain.Event, *Context) error:
		return HandlerFunc(func(_ context.Context, ev *domain.Event, hc *Context) error {
			return h(ev, hc)
		}), nil
	case func(*domain.Event, *Context):
		return HandlerFunc(func(_ context.Context, ev *domain.Event, hc *Context) error {
			h(ev, hc)
			return nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported handler type %T", fn)
	}
}

// handlerName derives a readable name for log lines, e.g. "plugins.logPing".
func handlerName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "unknown"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
