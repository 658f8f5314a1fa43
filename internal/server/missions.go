package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"operador/internal/domain"
	"operador/internal/engine"
)

type missionPath struct {
	ID int64 `path:"id" minimum:"1"`
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List the caller's missions in order",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Mission `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		missions, err := e.ListMissions(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if missions == nil {
			missions = []domain.Mission{}
		}
		return &struct {
			Body []domain.Mission `json:"body"`
		}{Body: missions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get a mission",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body domain.Mission `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.GetMission(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Mission `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/advance",
		Summary:     "Complete the mission when its streak is met and unlock the next one",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body engine.Advance `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.EvaluateAndAdvance(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Advance `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/confirm",
		Summary:     "Complete a mission that has no streak rule",
		Tags:        []string{"missions"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body engine.Advance `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ConfirmMission(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Advance `json:"body"`
		}{Body: res}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-progress",
		Method:        http.MethodPost,
		Path:          "/missions/{id}/progress",
		Summary:       "Record a binary check-in",
		Tags:          []string{"progress"},
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id" minimum:"1"`
		Body ProgressRequest `json:"body"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RecordProgress(ctx, engine.ProgressInput{
			UserID:    userID,
			MissionID: input.ID,
			Date:      input.Body.Date,
			Completed: input.Body.Completed,
			Notes:     input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: ProgressResponse{Success: true, Progress: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "today-progress",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/progress/today",
		Summary:     "Today's check-in, null when none was recorded",
		Tags:        []string{"progress"},
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body TodayProgressResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.TodayProgress(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodayProgressResponse `json:"body"`
		}{Body: TodayProgressResponse{Date: e.Clock.Today(), Progress: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-progress",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/progress",
		Summary:     "Check-in history, newest first",
		Tags:        []string{"progress"},
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id" minimum:"1"`
		Limit int   `query:"limit" default:"30"`
	}) (*struct {
		Body []domain.DailyProgress `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ProgressHistory(ctx, userID, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.DailyProgress{}
		}
		return &struct {
			Body []domain.DailyProgress `json:"body"`
		}{Body: items}, nil
	})
}

type AutonomyResponse struct {
	domain.Autonomy
	History []domain.AutonomySnapshot `json:"history"`
}

func registerAutonomy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "autonomy",
		Method:      http.MethodGet,
		Path:        "/autonomy",
		Summary:     "Autonomy score with weekly history",
		Tags:        []string{"autonomy"},
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Weeks int `query:"weeks" default:"12"`
	}) (*struct {
		Body AutonomyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Autonomy(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		history, err := e.AutonomyHistory(ctx, userID, input.Weeks)
		if err != nil {
			return nil, handleError(err)
		}
		if history == nil {
			history = []domain.AutonomySnapshot{}
		}
		return &struct {
			Body AutonomyResponse `json:"body"`
		}{Body: AutonomyResponse{Autonomy: a, History: history}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "snapshot-autonomy",
		Method:      http.MethodPost,
		Path:        "/autonomy/snapshot",
		Summary:     "Store this week's autonomy score",
		Tags:        []string{"autonomy"},
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.AutonomySnapshot `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.SnapshotAutonomy(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AutonomySnapshot `json:"body"`
		}{Body: snap}, nil
	})
}

// eventSource pages events forward from a cursor.
type eventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, userID int64) ([]domain.Event, error)
}

func registerEvents(api huma.API, e engine.Engine, src eventSource) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List the caller's events",
		Description: "Without a cursor the newest events come first. With a cursor, events after it come in ascending order.",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var (
			items []domain.Event
			err   error
		)
		resp := paginatedEvents{Items: []EventResponse{}}
		if input.Cursor == "" {
			items, err = e.Events(ctx, userID, limit)
		} else {
			cursor, perr := strconv.ParseInt(input.Cursor, 10, 64)
			if perr != nil || cursor < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			items, err = src.EventsAfter(ctx, limit, cursor, userID)
			resp.NextCursor = input.Cursor
		}
		if err != nil {
			return nil, handleError(err)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		if input.Cursor != "" && len(items) > 0 {
			resp.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
