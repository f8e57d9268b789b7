package mcp

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/dicklesworthstone/agentmail/internal/views"
)

// registerAllResources wires resources/read (spec §4.6) for the
// `resource://<noun>/<key>[?query]` scheme. The URI-template-to-handler
// shape follows the same reflection-free, data-driven spirit as
// registry.go's tool dispatch, adapted to the SDK's resource API.
func registerAllResources(server *mcp_sdk.Server, db *store.DB) {
	server.AddResource(&mcp_sdk.Resource{
		URI:         "resource://projects",
		Name:        "projects",
		Description: "Every known project.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
		out, err := views.ProjectsView(ctx, db)
		if err != nil {
			return nil, err
		}
		return jsonResourceResult(req.Params.URI, out)
	})

	server.AddResourceTemplate(&mcp_sdk.ResourceTemplate{
		URITemplate: "resource://project/{slug}",
		Name:        "project",
		Description: "A single project and its agent roster.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
		slug, _, err := parseNounKey(req.Params.URI, "project")
		if err != nil {
			return nil, err
		}
		out, err := views.ProjectView(ctx, db, slug)
		if err != nil {
			return nil, err
		}
		return jsonResourceResult(req.Params.URI, out)
	})

	server.AddResourceTemplate(&mcp_sdk.ResourceTemplate{
		URITemplate: "resource://agents/{slug}",
		Name:        "agents",
		Description: "Every agent registered under a project.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
		slug, _, err := parseNounKey(req.Params.URI, "agents")
		if err != nil {
			return nil, err
		}
		proj, err := identity.GetProjectBySlug(ctx, db, slug)
		if err != nil {
			return nil, err
		}
		out, err := views.AgentsView(ctx, db, proj.ID)
		if err != nil {
			return nil, err
		}
		return jsonResourceResult(req.Params.URI, out)
	})

	server.AddResourceTemplate(&mcp_sdk.ResourceTemplate{
		URITemplate: "resource://file_reservations/{slug}",
		Name:        "file_reservations",
		Description: "Every live file reservation in a project.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
		slug, _, err := parseNounKey(req.Params.URI, "file_reservations")
		if err != nil {
			return nil, err
		}
		proj, err := identity.GetProjectBySlug(ctx, db, slug)
		if err != nil {
			return nil, err
		}
		out, err := views.FileReservationsView(ctx, db, proj.ID)
		if err != nil {
			return nil, err
		}
		return jsonResourceResult(req.Params.URI, out)
	})

	server.AddResourceTemplate(&mcp_sdk.ResourceTemplate{
		URITemplate: "resource://views/{viewname}/{agent}",
		Name:        "views",
		Description: "One of urgent_unread, ack_required, acks_stale, ack_overdue for an agent, scoped to a project via the project_key query parameter.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
		return readViewResource(ctx, db, req)
	})
}

// parseNounKey extracts the <key> segment from resource://<noun>/<key> and
// returns it alongside the parsed URL for callers that also need the
// query string.
func parseNounKey(rawURI, noun string) (string, *url.URL, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", nil, mcperr.Invalid("malformed resource uri %q: %v", rawURI, err)
	}
	path := strings.TrimPrefix(u.Opaque, "/")
	if path == "" {
		path = strings.TrimPrefix(u.Host+u.Path, "/")
	}
	segments := strings.Split(path, "/")
	if len(segments) < 2 || segments[0] != noun {
		return "", nil, mcperr.Invalid("resource uri %q does not match resource://%s/<key>", rawURI, noun)
	}
	return segments[1], u, nil
}

// readViewResource dispatches resource://views/<viewname>/<agent> against
// the pure read projections in internal/views (spec §4.5). project_key is
// required as a query parameter to resolve the agent unambiguously.
func readViewResource(ctx context.Context, db *store.DB, req *mcp_sdk.ReadResourceRequest) (*mcp_sdk.ReadResourceResult, error) {
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return nil, mcperr.Invalid("malformed resource uri %q: %v", req.Params.URI, err)
	}
	path := strings.TrimPrefix(u.Opaque, "/")
	if path == "" {
		path = strings.TrimPrefix(u.Host+u.Path, "/")
	}
	segments := strings.Split(path, "/")
	if len(segments) < 3 || segments[0] != "views" {
		return nil, mcperr.Invalid("resource uri %q does not match resource://views/<viewname>/<agent>", req.Params.URI)
	}
	viewname, agentName := segments[1], segments[2]

	projectKey := u.Query().Get("project_key")
	if projectKey == "" {
		return nil, mcperr.Invalid("resource://views/%s/%s requires a project_key query parameter", viewname, agentName)
	}
	proj, err := identity.GetProjectBySlug(ctx, db, identity.Slugify(projectKey))
	if err != nil {
		return nil, err
	}
	a, err := identity.GetAgentByName(ctx, db, proj.ID, agentName)
	if err != nil {
		return nil, err
	}

	var out any
	switch viewname {
	case "urgent_unread":
		out, err = views.UrgentUnread(ctx, db, a.ID)
	case "ack_required":
		out, err = views.AckRequired(ctx, db, a.ID)
	case "acks_stale":
		out, err = views.AcksStale(ctx, db, a.ID, durationParam(u, "stale_after_seconds"))
	case "ack_overdue":
		out, err = views.AckOverdue(ctx, db, a.ID, durationParam(u, "overdue_after_seconds"))
	default:
		return nil, mcperr.Invalid("unknown view %q", viewname)
	}
	if err != nil {
		return nil, err
	}
	return jsonResourceResult(req.Params.URI, out)
}

func durationParam(u *url.URL, key string) time.Duration {
	raw := u.Query().Get(key)
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func jsonResourceResult(uri string, v any) (*mcp_sdk.ReadResourceResult, error) {
	data, err := marshalIndent(v)
	if err != nil {
		return nil, err
	}
	return &mcp_sdk.ReadResourceResult{
		Contents: []*mcp_sdk.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
