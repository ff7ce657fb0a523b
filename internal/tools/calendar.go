package tools

import (
	"context"
	"fmt"

	"github.com/user/llmchat/internal/db"
)

func calendarTools(repo *db.CalendarRepo) []Tool {
	return []Tool{
		{
			Name:        "calendar_list",
			Description: "List calendar events, optionally filtered by date range",
			Parameters: map[string]Param{
				"start": {Type: "string", Description: "Start date/time filter (ISO 8601)"},
				"end":   {Type: "string", Description: "End date/time filter (ISO 8601)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				start, _, err := optionalTime(args, "start")
				if err != nil {
					return nil, err
				}
				end, _, err := optionalTime(args, "end")
				if err != nil {
					return nil, err
				}
				events, err := repo.List(ctx, db.CalendarFilter{UserID: db.DefaultUserID, Start: start, End: end})
				if err != nil {
					return nil, err
				}
				if events == nil {
					events = []*db.CalendarEvent{}
				}
				return events, nil
			},
		},
		{
			Name:        "calendar_create",
			Description: "Create a new calendar event",
			Parameters: map[string]Param{
				"title":       {Type: "string", Description: "Event title", Required: true},
				"description": {Type: "string", Description: "Event description"},
				"start_time":  {Type: "string", Description: "Start time in ISO 8601 format", Required: true},
				"end_time":    {Type: "string", Description: "End time in ISO 8601 format"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				title, err := requiredString(args, "title")
				if err != nil {
					return nil, err
				}
				if _, err := requiredString(args, "start_time"); err != nil {
					return nil, err
				}
				event := &db.CalendarEvent{UserID: db.DefaultUserID, Title: title}
				if err := applyEventFields(event, args); err != nil {
					return nil, err
				}
				if err := repo.Create(ctx, event); err != nil {
					return nil, err
				}
				return event, nil
			},
		},
		{
			Name:        "calendar_update",
			Description: "Update an existing calendar event",
			Parameters: map[string]Param{
				"id":          {Type: "string", Description: "ID of the event to update", Required: true},
				"title":       {Type: "string"},
				"description": {Type: "string"},
				"start_time":  {Type: "string"},
				"end_time":    {Type: "string"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := requiredString(args, "id")
				if err != nil {
					return nil, err
				}
				event, err := repo.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				if event == nil {
					return nil, fmt.Errorf("event %s not found", id)
				}
				if err := applyEventFields(event, args); err != nil {
					return nil, err
				}
				if err := repo.Update(ctx, event); err != nil {
					return nil, err
				}
				return event, nil
			},
		},
		{
			Name:        "calendar_delete",
			Description: "Delete a calendar event",
			Parameters: map[string]Param{
				"id": {Type: "string", Description: "ID of the event to delete", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := requiredString(args, "id")
				if err != nil {
					return nil, err
				}
				deleted, err := repo.Delete(ctx, id)
				if err != nil {
					return nil, err
				}
				if !deleted {
					return nil, fmt.Errorf("event %s not found", id)
				}
				return deleteResult{Success: true, ID: id}, nil
			},
		},
	}
}

// applyEventFields copies the optional fields present in args onto event.
func applyEventFields(event *db.CalendarEvent, args map[string]any) error {
	if v, ok, err := optionalString(args, "title"); err != nil {
		return err
	} else if ok && v != "" {
		event.Title = v
	}
	if v, ok, err := optionalString(args, "description"); err != nil {
		return err
	} else if ok {
		event.Description = v
	}
	if ts, ok, err := optionalTime(args, "start_time"); err != nil {
		return err
	} else if ok {
		event.StartTime = ts
	}
	if ts, ok, err := optionalTime(args, "end_time"); err != nil {
		return err
	} else if ok {
		event.EndTime = ts
	}
	return nil
}
