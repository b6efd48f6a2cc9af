package appcontext

import "context"

type ContextKey string

var (
	RequestIDKey  = ContextKey("X-Request-Id")
	MethodKey     = ContextKey("X-Method")
	RouteKey      = ContextKey("X-Route")
	RemoteIPKey   = ContextKey("X-Remote-Ip")
	DocumentIDKey = ContextKey("X-Document-Id")
	ChecksumKey   = ContextKey("X-Checksum")
	StageKey      = ContextKey("X-Stage")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetDocumentID tags the context with the document being ingested so every
// log line and span below it carries the document.
func SetDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

func GetDocumentID(ctx context.Context) string {
	value, ok := ctx.Value(DocumentIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetChecksum(ctx context.Context, checksum string) context.Context {
	return context.WithValue(ctx, ChecksumKey, checksum)
}

func GetChecksum(ctx context.Context) string {
	value, ok := ctx.Value(ChecksumKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

func GetStage(ctx context.Context) string {
	value, ok := ctx.Value(StageKey).(string)
	if !ok {
		return ""
	}
	return value
}
