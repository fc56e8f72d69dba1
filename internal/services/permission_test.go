package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

func newPermissionFixture(t *testing.T) (PermissionService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	permRepo := repos.NewProjectPermissionRepo(db, log)
	projRepo := repos.NewProjectRepo(db, log)
	return NewPermissionService(db, log, permRepo, projRepo), db
}

func TestHasPermission_GrantSubsumption(t *testing.T) {
	svc, db := newPermissionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	editor := seedUser(t, db, "editor@test.dev")
	project := seedProject(t, db, owner, false)
	seedPermission(t, db, editor, project, types.PermissionModelEditor)

	cases := []struct {
		name     string
		required types.PermissionLevel
		want     bool
	}{
		{"editor covers viewer", types.PermissionViewer, true},
		{"editor covers editor", types.PermissionModelEditor, true},
		{"editor lacks admin", types.PermissionAdmin, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.HasPermission(ctx, editor.ID, project.ID, tc.required)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if got != tc.want {
				t.Fatalf("required=%s want=%v got=%v", tc.required, tc.want, got)
			}
		})
	}

	// Owner holds an admin row written at project creation.
	got, err := svc.HasPermission(ctx, owner.ID, project.ID, types.PermissionAdmin)
	if err != nil || !got {
		t.Fatalf("owner admin: got=%v err=%v", got, err)
	}
}

func TestHasPermission_PublicProjects(t *testing.T) {
	svc, db := newPermissionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	stranger := seedUser(t, db, "stranger@test.dev")
	public := seedProject(t, db, owner, true)
	private := seedProject(t, db, owner, false)

	got, err := svc.HasPermission(ctx, stranger.ID, public.ID, types.PermissionViewer)
	if err != nil || !got {
		t.Fatalf("public project must grant viewer to anyone: got=%v err=%v", got, err)
	}
	got, err = svc.HasPermission(ctx, stranger.ID, public.ID, types.PermissionModelEditor)
	if err != nil || got {
		t.Fatalf("public project must not grant edit access: got=%v err=%v", got, err)
	}
	got, err = svc.HasPermission(ctx, stranger.ID, private.ID, types.PermissionViewer)
	if err != nil || got {
		t.Fatalf("private project must deny strangers: got=%v err=%v", got, err)
	}
}

func TestHasPermission_UnknownLevelRejected(t *testing.T) {
	svc, db := newPermissionFixture(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)

	if _, err := svc.HasPermission(ctx, owner.ID, project.ID, types.PermissionLevel("root")); err == nil {
		t.Fatalf("unknown level must error")
	}
}
