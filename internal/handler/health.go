package handler

import "net/http"

// Health reports process liveness unconditionally; it never checks
// downstream dependencies, so a load balancer doesn't pull the gateway out
// of rotation because a database it isn't currently serving is unreachable.
func Health(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]string{"status": "ok"})
}
