package transport

import (
	"fmt"
	"net/http"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type route struct {
	method  string
	path    string
	handler gwruntime.HandlerFunc
}

// NewGateway routes the HTTP surface. journal may be nil when the journal
// is disabled; /healthz asks the gRPC health service.
func NewGateway(follow *FollowHandler, journal *JournalHandler, healthClient healthpb.HealthClient) (*gwruntime.ServeMux, error) {
	mux := gwruntime.NewServeMux(gwruntime.WithHealthzEndpoint(healthClient))

	routes := []route{
		{method: http.MethodGet, path: "/follow", handler: follow.Follow},
		{method: http.MethodPost, path: "/follow", handler: follow.Follow},
		{method: http.MethodGet, path: "/follow/ws", handler: follow.FollowWebSocket},
	}
	if journal != nil {
		routes = append(routes, route{method: http.MethodGet, path: "/sessions/{id}/transitions", handler: journal.SessionTransitions})
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.path, err)
		}
	}
	return mux, nil
}
