package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field attaches one key/value pair to a log event. Fields apply in order,
// so a repeated key keeps the last value written.
type Field func(e *zerolog.Event)

func String(key, val string) Field {
	return func(e *zerolog.Event) { e.Str(key, val) }
}

func Int(key string, val int) Field {
	return func(e *zerolog.Event) { e.Int(key, val) }
}

func Bool(key string, val bool) Field {
	return func(e *zerolog.Event) { e.Bool(key, val) }
}

func Time(key string, val time.Time) Field {
	return func(e *zerolog.Event) { e.Time(key, val) }
}

func Duration(key string, val time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(key, val) }
}

func Any(key string, val any) Field {
	return func(e *zerolog.Event) { e.Interface(key, val) }
}

// Err records err under the "err" key. A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}
