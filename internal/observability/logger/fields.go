package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard fields, HTTP.

func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Standard fields, domain.

func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

func GrantType(v string) zap.Field {
	return zap.String("grant_type", v)
}

func Scope(v string) zap.Field {
	return zap.String("scope", v)
}

// Standard fields, system.

func Component(v string) zap.Field {
	return zap.String("component", v)
}

func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer tags the originating layer (handler, service, store).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

// Generic fields.

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

func Int64(key string, v int64) zap.Field {
	return zap.Int64(key, v)
}

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
