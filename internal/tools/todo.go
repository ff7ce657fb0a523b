package tools

import (
	"context"
	"fmt"

	"github.com/user/llmchat/internal/db"
)

type deleteResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func todoTools(repo *db.TodoRepo) []Tool {
	return []Tool{
		{
			Name:        "todo_list",
			Description: "List all todo items",
			Parameters:  map[string]Param{},
			Execute: func(ctx context.Context, _ map[string]any) (any, error) {
				todos, err := repo.List(ctx, db.DefaultUserID)
				if err != nil {
					return nil, err
				}
				if todos == nil {
					todos = []*db.Todo{}
				}
				return todos, nil
			},
		},
		{
			Name:        "todo_create",
			Description: "Create a new todo item",
			Parameters: map[string]Param{
				"title":       {Type: "string", Description: "Title of the todo", Required: true},
				"description": {Type: "string", Description: "Optional description"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				title, err := requiredString(args, "title")
				if err != nil {
					return nil, err
				}
				description, _, err := optionalString(args, "description")
				if err != nil {
					return nil, err
				}
				todo := &db.Todo{UserID: db.DefaultUserID, Title: title, Description: description}
				if err := repo.Create(ctx, todo); err != nil {
					return nil, err
				}
				return todo, nil
			},
		},
		{
			Name:        "todo_update",
			Description: "Update an existing todo item",
			Parameters: map[string]Param{
				"id":          {Type: "string", Description: "ID of the todo to update", Required: true},
				"title":       {Type: "string", Description: "New title"},
				"description": {Type: "string", Description: "New description"},
				"done":        {Type: "boolean", Description: "Mark as done or not done"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := requiredString(args, "id")
				if err != nil {
					return nil, err
				}
				todo, err := repo.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				if todo == nil {
					return nil, fmt.Errorf("todo %s not found", id)
				}
				if v, ok, err := optionalString(args, "title"); err != nil {
					return nil, err
				} else if ok {
					todo.Title = v
				}
				if v, ok, err := optionalString(args, "description"); err != nil {
					return nil, err
				} else if ok {
					todo.Description = v
				}
				if v, ok, err := optionalBool(args, "done"); err != nil {
					return nil, err
				} else if ok {
					todo.Done = v
				}
				if err := repo.Update(ctx, todo); err != nil {
					return nil, err
				}
				return todo, nil
			},
		},
		{
			Name:        "todo_delete",
			Description: "Delete a todo item",
			Parameters: map[string]Param{
				"id": {Type: "string", Description: "ID of the todo to delete", Required: true},
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
					return nil, fmt.Errorf("todo %s not found", id)
				}
				return deleteResult{Success: true, ID: id}, nil
			},
		},
	}
}
