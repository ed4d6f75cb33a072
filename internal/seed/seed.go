// Package seed loads the demo tenants, accounts and tasks. Running it twice
// leaves the data unchanged.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tasktrail.io/internal/auth"
	"tasktrail.io/internal/ids"
	"tasktrail.io/internal/obs"
	"tasktrail.io/internal/task"
)

// DefaultPassword is shared by every demo account.
const DefaultPassword = "password123"

// Accounts is what seeding needs from the account store.
type Accounts interface {
	auth.Writer
	FindUserByEmail(ctx context.Context, email string) (auth.User, error)
}

// Result counts the records created by one run.
type Result struct {
	Organizations int
	Users         int
	Assignments   int
	Tasks         int
}

type demoUser struct {
	email, first, last string
	org                string
	role               auth.Role
}

type demoTask struct {
	title, description string
	status             task.Status
	category           string
	creator            string
}

var organizations = []auth.Organization{
	{ID: "org-techcorp", Name: "TechCorp", Description: "Technology company focusing on innovation"},
	{ID: "org-designstudio", Name: "DesignStudio", Description: "Creative design agency"},
}

var users = []demoUser{
	{"user1@techcorp.com", "John", "Smith", "org-techcorp", auth.RoleOwner},
	{"user2@techcorp.com", "Jane", "Doe", "org-techcorp", auth.RoleAdmin},
	{"user3@techcorp.com", "Bob", "Johnson", "org-techcorp", auth.RoleViewer},
	{"designer1@designstudio.com", "Alice", "Williams", "org-designstudio", auth.RoleOwner},
	{"designer2@designstudio.com", "Charlie", "Brown", "org-designstudio", auth.RoleViewer},
}

var tasks = map[string][]demoTask{
	"org-techcorp": {
		{"Setup development environment", "Configure local development environment with all necessary tools", task.StatusDone, "Development", "user1@techcorp.com"},
		{"Implement authentication system", "Build JWT-based authentication with role-based access control", task.StatusInProgress, "Development", "user2@techcorp.com"},
		{"Write API documentation", "Document all API endpoints with examples and response formats", task.StatusTodo, "Documentation", "user2@techcorp.com"},
		{"Code review for PR #42", "Review pull request for new user management features", task.StatusInProgress, "Review", "user3@techcorp.com"},
		{"Fix bug in task filtering", "Tasks are not filtering correctly by status", task.StatusTodo, "Bug Fix", "user1@techcorp.com"},
	},
	"org-designstudio": {
		{"Design new landing page", "Create mockups for the new company landing page", task.StatusInProgress, "Design", "designer1@designstudio.com"},
		{"Client presentation preparation", "Prepare presentation deck for upcoming client meeting", task.StatusTodo, "Business", "designer1@designstudio.com"},
		{"Update brand guidelines", "Refresh brand guidelines with new logo variations", task.StatusDone, "Design", "designer2@designstudio.com"},
	},
}

// Run creates whatever part of the demo data set is missing.
func Run(ctx context.Context, accounts Accounts, store task.Store) (Result, error) {
	var res Result
	for _, org := range organizations {
		_, err := accounts.CreateOrganization(ctx, org)
		switch {
		case err == nil:
			res.Organizations++
		case errors.Is(err, auth.ErrConflict):
		default:
			return res, fmt.Errorf("seed organization %s: %w", org.Name, err)
		}
	}

	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return res, err
	}
	userIDs := make(map[string]string, len(users))
	for _, du := range users {
		u, err := accounts.FindUserByEmail(ctx, du.email)
		if errors.Is(err, auth.ErrNotFound) {
			u, err = accounts.CreateUser(ctx, auth.User{
				ID:             ids.New(),
				Email:          du.email,
				PasswordHash:   hash,
				FirstName:      du.first,
				LastName:       du.last,
				OrganizationID: du.org,
			})
			if err == nil {
				res.Users++
			}
		}
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", du.email, err)
		}
		userIDs[du.email] = u.ID

		_, err = accounts.Assign(ctx, u.ID, du.role, du.org)
		switch {
		case err == nil:
			res.Assignments++
		case errors.Is(err, auth.ErrConflict):
		default:
			return res, fmt.Errorf("seed role %s for %s: %w", du.role, du.email, err)
		}
	}

	for _, org := range organizations {
		existing, err := store.List(ctx, org.ID, task.ListFilter{})
		if err != nil {
			return res, fmt.Errorf("list tasks for %s: %w", org.Name, err)
		}
		if len(existing) > 0 {
			continue
		}
		at := time.Now().UTC()
		for i, dt := range tasks[org.ID] {
			created := at.Add(time.Duration(i) * time.Second)
			t := task.Task{
				ID:             ids.NewAt(created),
				Title:          dt.title,
				Description:    dt.description,
				Status:         dt.status,
				Category:       dt.category,
				OrganizationID: org.ID,
				CreatedByID:    userIDs[dt.creator],
				CreatedAt:      created,
				UpdatedAt:      created,
			}
			if err := store.Create(ctx, t); err != nil {
				return res, fmt.Errorf("seed task %q: %w", dt.title, err)
			}
			res.Tasks++
		}
	}

	obs.Logger().WithFields(logrus.Fields{
		"organizations": res.Organizations,
		"users":         res.Users,
		"assignments":   res.Assignments,
		"tasks":         res.Tasks,
	}).Info("seed complete")
	return res, nil
}
