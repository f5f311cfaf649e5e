package core

import "context"

type contextKey string

const (
	ctxKeyClientIP contextKey = "client_ip"
	ctxKeyProgress contextKey = "progress"
)

// ProgressFunc receives the number of rows inserted so far and the total to
// insert, once per committed batch.
type ProgressFunc func(inserted, total int)

// ContextWithIPAddress records the client address that submitted a request.
// AcceptUpload stores it on the job as UploadedFrom.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// GetIPAddressFromContext extracts the client address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// ContextWithProgress attaches a batch progress callback. The committer calls
// it from the goroutine running ProcessJob.
func ContextWithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, ctxKeyProgress, fn)
}

func progressFromContext(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(ctxKeyProgress).(ProgressFunc)
	return fn
}
