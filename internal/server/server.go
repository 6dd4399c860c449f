package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/engine/auth"
	"stardock/internal/engine/reject"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/tick"
	"stardock/internal/txn"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Rate     RateConfig
	// Hub serves GET /feed when set.
	Hub *Hub
	// ManualTicks exposes POST /world/tick. Servers running their own tick
	// loop leave it off.
	ManualTicks bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"rejected"`
	Message string         `json:"message" example:"insufficient credits: need 300, have 120"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// out wraps a response body for huma.
type out[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *out[T] { return &out[T]{Body: v} }

// New returns an HTTP handler exposing the stardock API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.Config == nil {
		return nil, errors.New("server: engine has no config")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are the caller's fault, not a rule rejection
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	limit, err := newRateLimitMiddleware(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("server: rate limiter: %w", err)
	}
	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Use(limit)
	hcfg := huma.DefaultConfig("Stardock API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	e := cfg.Engine
	registerDocs(router, basePath)
	registerHealth(group)
	registerWorld(group, e, cfg.ManualTicks)
	registerPlayers(group, e, cfg.Auth)
	registerGalaxy(group, e)
	registerTrade(group, e)
	registerShips(group, e)
	registerConvoys(group, e)
	registerMissions(group, e)
	registerJournal(group, e)
	registerOpenAPI(router, api, basePath)
	if cfg.Hub != nil {
		router.Get("/feed", cfg.Hub.ServeWS)
	}
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"kind": fe.Kind, "id": fe.ID})
	}
	if errors.Is(err, txn.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if reject.Is(err) {
		return newAPIError(http.StatusUnprocessableEntity, "rejected", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "rejected"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var playerErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, publicRoutes(basePath))
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func operations(item *huma.PathItem) map[string]*huma.Operation {
	all := map[string]*huma.Operation{
		http.MethodGet: item.Get, http.MethodPut: item.Put, http.MethodPost: item.Post,
		http.MethodDelete: item.Delete, http.MethodPatch: item.Patch,
	}
	for m, op := range all {
		if op == nil {
			delete(all, m)
		}
	}
	return all
}

func applyAuthSecurity(oas *huma.OpenAPI, public func(method, p string) bool) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	for route, item := range oas.Paths {
		for method, op := range operations(item) {
			if public(method, route) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Stardock API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Register with POST /players, then send Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerWorld(api huma.API, e engine.Engine, manualTicks bool) {
	huma.Register(api, huma.Operation{
		OperationID: "get-world",
		Method:      http.MethodGet,
		Path:        "/world",
		Summary:     "World clock",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.GameWorld], error) {
		w, err := e.World(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-tick",
		Method:      http.MethodPost,
		Path:        "/world/tick",
		Summary:     "Advance the world by one tick",
		Errors:      []int{http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*out[tick.Report], error) {
		if !manualTicks {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "ticks are driven by the server", nil)
		}
		if _, err := playerIDFromContext(ctx); err != nil {
			return nil, err
		}
		report, err := e.AdvanceTick(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(report), nil
	})
}

func registerPlayers(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-player",
		Method:        http.MethodPost,
		Path:          "/players",
		Summary:       "Register a player and receive a starter ship",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*out[RegisterResponse], error) {
		p, s, err := e.CreatePlayer(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := authCfg.Tokens.Issue(p.ID, p.Name)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(RegisterResponse{Player: p, Ship: s, Token: token}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dev-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "DEV ONLY: mint a token for an existing player name",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body TokenRequest `json:"body"`
	}) (*out[TokenResponse], error) {
		if !authCfg.DevLogin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "dev login disabled", nil)
		}
		name := strings.TrimSpace(input.Body.Name)
		if name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := e.Repo.GetPlayerByName(ctx, name)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := authCfg.Tokens.Issue(p.ID, p.Name)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(TokenResponse{Token: token}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current player",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.Player], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Player(ctx, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-ships",
		Method:      http.MethodGet,
		Path:        "/me/ships",
		Summary:     "Current player's fleet",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Ship], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ships, err := e.Ships(ctx, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ships), nil
	})
}

func registerGalaxy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-systems",
		Method:      http.MethodGet,
		Path:        "/systems",
		Summary:     "Systems with their lanes, government and danger",
	}, func(ctx context.Context, _ *struct{}) (*out[[]SystemResponse], error) {
		levels, err := e.Repo.DangerLevels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		systems := e.Galaxy.Systems()
		items := make([]SystemResponse, 0, len(systems))
		for _, sys := range systems {
			item := SystemResponse{System: sys, Danger: levels[sys.ID], Lanes: []domain.Connection{}}
			if gov, ok := e.Config.GovernmentFor(sys); ok {
				item.Government = gov.ID
			}
			for _, c := range e.Config.Universe.Connections {
				if c.From == sys.ID || c.To == sys.ID {
					item.Lanes = append(item.Lanes, c)
				}
			}
			items = append(items, item)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "system-market",
		Method:      http.MethodGet,
		Path:        "/systems/{system_id}/market",
		Summary:     "Live prices at one station",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SystemID string `path:"system_id"`
	}) (*out[[]engine.Quote], error) {
		quotes, err := e.Market(ctx, input.SystemID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(quotes), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Active events",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.EventInstance], error) {
		items, err := e.Events(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})
}

func registerTrade(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "trade",
		Method:      http.MethodPost,
		Path:        "/trades",
		Summary:     "Buy or sell with a docked ship or convoy",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		Body TradeRequest `json:"body"`
	}) (*out[engine.TradeResult], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Trade(ctx, engine.TradeOptions{
			PlayerID: playerID,
			ShipID:   input.Body.ShipID,
			ConvoyID: input.Body.ConvoyID,
			GoodID:   input.Body.GoodID,
			Action:   input.Body.Action,
			Quantity: input.Body.Quantity,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

type shipPath struct {
	ShipID string `path:"ship_id"`
}

func registerShips(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "navigate-ship",
		Method:      http.MethodPost,
		Path:        "/ships/{ship_id}/navigate",
		Summary:     "Depart for an adjacent system",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		ShipID string `path:"ship_id"`
		Body NavigateRequest `json:"body"`
	}) (*out[[]domain.Ship], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ships, err := e.Navigate(ctx, engine.NavigateOptions{PlayerID: playerID, ShipID: input.ShipID, Destination: input.Body.Destination})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ships), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "repair-ship",
		Method:      http.MethodPost,
		Path:        "/ships/{ship_id}/repair",
		Summary:     "Repair hull at the current station",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *shipPath) (*out[engine.RepairResult], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Repair(ctx, playerID, input.ShipID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "install-module",
		Method:      http.MethodPost,
		Path:        "/ships/{ship_id}/modules",
		Summary:     "Buy and install a module",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		ShipID string `path:"ship_id"`
		Body InstallModuleRequest `json:"body"`
	}) (*out[domain.Ship], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.InstallModule(ctx, playerID, input.ShipID, input.Body.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-module",
		Method:      http.MethodDelete,
		Path:        "/ships/{ship_id}/modules/{module_id}",
		Summary:     "Remove a module for a partial refund",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		ShipID   string `path:"ship_id"`
		ModuleID string `path:"module_id"`
	}) (*out[RemoveModuleResponse], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, refund, err := e.RemoveModule(ctx, playerID, input.ShipID, input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(RemoveModuleResponse{Ship: s, Refund: refund}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-convoy",
		Method:      http.MethodPost,
		Path:        "/ships/{ship_id}/leave-convoy",
		Summary:     "Detach a ship from its convoy",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *shipPath) (*out[domain.Ship], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.LeaveConvoy(ctx, playerID, input.ShipID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})
}

func registerConvoys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-convoy",
		Method:        http.MethodPost,
		Path:          "/convoys",
		Summary:       "Group docked ships into a convoy",
		DefaultStatus: http.StatusCreated,
		Errors:        playerErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateConvoyRequest `json:"body"`
	}) (*out[domain.Convoy], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateConvoy(ctx, playerID, input.Body.ShipIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-convoy",
		Method:      http.MethodPost,
		Path:        "/convoys/{convoy_id}/join",
		Summary:     "Add a docked ship to a convoy",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		ConvoyID string `path:"convoy_id"`
		Body JoinConvoyRequest `json:"body"`
	}) (*out[domain.Convoy], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.JoinConvoy(ctx, playerID, input.ConvoyID, input.Body.ShipID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "navigate-convoy",
		Method:      http.MethodPost,
		Path:        "/convoys/{convoy_id}/navigate",
		Summary:     "Depart with every ship in the convoy",
		Errors:      playerErrors,
	}, func(ctx context.Context, input *struct {
		ConvoyID string `path:"convoy_id"`
		Body NavigateRequest `json:"body"`
	}) (*out[[]domain.Ship], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ships, err := e.Navigate(ctx, engine.NavigateOptions{PlayerID: playerID, ConvoyID: input.ConvoyID, Destination: input.Body.Destination})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ships), nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "Mission board",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status   []string `query:"status" doc:"Statuses to include; defaults to available"`
		SystemID string   `query:"system_id"`
		Mine     bool     `query:"mine" doc:"Only missions held by the caller"`
	}) (*out[[]domain.Mission], error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.MissionFilter{SystemID: input.SystemID}
		for _, s := range input.Status {
			f.Statuses = append(f.Statuses, domain.MissionStatus(s))
		}
		if input.Mine {
			f.PlayerID = playerID
		}
		if len(f.Statuses) == 0 && !input.Mine {
			f.Statuses = []domain.MissionStatus{domain.MissionAvailable}
		}
		items, err := e.Missions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	type missionInput struct {
		MissionID string `path:"mission_id"`
		Body      *MissionShipRequest `json:"body,omitempty" required:"false"`
	}
	shipOf := func(in *missionInput) string {
		if in.Body == nil {
			return ""
		}
		return in.Body.ShipID
	}
	actions := []struct {
		id, verb, summary string
		run               func(ctx context.Context, playerID string, in *missionInput) (domain.Mission, error)
	}{
		{"accept-mission", "accept", "Claim an available mission", func(ctx context.Context, playerID string, in *missionInput) (domain.Mission, error) {
			return e.AcceptMission(ctx, playerID, in.MissionID)
		}},
		{"start-mission", "start", "Start an accepted operational mission", func(ctx context.Context, playerID string, in *missionInput) (domain.Mission, error) {
			return e.StartMission(ctx, playerID, in.MissionID, shipOf(in))
		}},
		{"deliver-mission", "deliver", "Deliver trade mission cargo", func(ctx context.Context, playerID string, in *missionInput) (domain.Mission, error) {
			return e.DeliverMission(ctx, playerID, in.MissionID, shipOf(in))
		}},
		{"abandon-mission", "abandon", "Return a held mission to the board", func(ctx context.Context, playerID string, in *missionInput) (domain.Mission, error) {
			return e.AbandonMission(ctx, playerID, in.MissionID)
		}},
	}
	for _, a := range actions {
		huma.Register(api, huma.Operation{
			OperationID: a.id,
			Method:      http.MethodPost,
			Path:        "/missions/{mission_id}/" + a.verb,
			Summary:     a.summary,
			Errors:      playerErrors,
		}, func(ctx context.Context, input *missionInput) (*out[domain.Mission], error) {
			playerID, authErr := playerIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			m, err := a.run(ctx, playerID, input)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(m), nil
		})
	}
}

func registerJournal(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-journal",
		Method:      http.MethodGet,
		Path:        "/journal",
		Summary:     "World journal in id order",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		AfterID    int64  `query:"after_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"100" maximum:"1000"`
	}) (*out[[]domain.JournalEntry], error) {
		if _, authErr := playerIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.History(ctx, journal.Filter{
			AfterID:    input.AfterID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})
}
