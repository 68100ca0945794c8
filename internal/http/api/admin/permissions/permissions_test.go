package permissions

import (
	"testing"

	"github.com/marketforge/marketforge/internal/models"
)

func TestAdminHoldsEveryPermission(t *testing.T) {
	if got, want := len(ForRole(models.RoleAdmin)), len(Definitions()); got != want {
		t.Fatalf("expected %d admin permissions, got %d", want, got)
	}
	for _, def := range Definitions() {
		if !RoleAllows(models.RoleAdmin, def.Key) {
			t.Fatalf("expected admin to hold %s", def.Key)
		}
	}
}

func TestSupportIsReadMostly(t *testing.T) {
	if !RoleAllows(models.RoleSupport, Key("get", "/api/admin/users")) {
		t.Fatalf("expected support to list users")
	}
	if !RoleAllows(models.RoleSupport, Key("POST", "/api/admin/users/:id/suspend")) {
		t.Fatalf("expected support to suspend users")
	}
	denied := []string{
		Key("DELETE", "/api/admin/users/:id"),
		Key("PUT", "/api/admin/settings/:key"),
		Key("PUT", "/api/admin/users/:id/subscription"),
	}
	for _, key := range denied {
		if RoleAllows(models.RoleSupport, key) {
			t.Fatalf("expected support to be denied %s", key)
		}
	}
}

func TestNonStaffRolesDenied(t *testing.T) {
	if RoleAllows(models.RoleUser, Key("GET", "/api/admin/users")) {
		t.Fatalf("expected plain users denied")
	}
	if RoleAllows("", Key("GET", "/api/admin/unknown")) {
		t.Fatalf("expected empty role denied even on undefined routes")
	}
}

func TestNormalizePermissions(t *testing.T) {
	got := NormalizePermissions([]string{" b", "a", "b", ""})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected normalized permissions %v", got)
	}
}
