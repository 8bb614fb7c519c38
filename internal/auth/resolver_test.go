package auth

import (
	datamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("PermissionResolver", func() {
	var resolver *PermissionResolver

	ginkgo.BeforeEach(func() {
		resolver = NewPermissionResolver([]string{"admin", "administrator", "superuser"})
	})

	ginkgo.It("should union permissions across roles", func() {
		// Given a user with two overlapping roles
		u := &datamodel.User{Roles: []datamodel.Role{
			{Name: "viewer", Permissions: perms("alert:read", "asset:read")},
			{Name: "responder", Permissions: perms("alert:read", "alert:write")},
		}}

		// When
		set := resolver.ResolvePermissions(u)

		// Then
		gomega.Expect(set.Slice()).To(gomega.Equal([]string{"alert:read", "alert:write", "asset:read"}))
		gomega.Expect(resolver.HasPermission(u, "alert:write")).To(gomega.BeTrue())
		gomega.Expect(resolver.HasPermission(u, "user:write")).To(gomega.BeFalse())
	})

	ginkgo.It("should fail closed for a user with no roles", func() {
		u := &datamodel.User{Username: "nobody"}

		gomega.Expect(resolver.ResolvePermissions(u)).To(gomega.BeEmpty())
		gomega.Expect(resolver.HasPermission(u, "alert:read")).To(gomega.BeFalse())
		gomega.Expect(resolver.IsAdmin(u)).To(gomega.BeFalse())
	})

	ginkgo.It("should fail closed for a nil user", func() {
		gomega.Expect(resolver.HasPermission(nil, "alert:read")).To(gomega.BeFalse())
		gomega.Expect(resolver.IsAdmin(nil)).To(gomega.BeFalse())
	})

	ginkgo.It("should let admin roles through without explicit grants", func() {
		u := &datamodel.User{Roles: []datamodel.Role{{Name: "superuser"}}}

		gomega.Expect(resolver.IsAdmin(u)).To(gomega.BeTrue())
		gomega.Expect(resolver.HasPermission(u, "anything:at-all")).To(gomega.BeTrue())
	})

	ginkgo.DescribeTable("should match role names and permissions exactly",
		func(role, permission string, allowed bool) {
			u := &datamodel.User{Roles: []datamodel.Role{{Name: role, Permissions: perms("alert:read")}}}
			gomega.Expect(resolver.HasPermission(u, permission)).To(gomega.Equal(allowed))
		},
		ginkgo.Entry("exact permission", "analyst", "alert:read", true),
		ginkgo.Entry("no prefix match", "analyst", "alert", false),
		ginkgo.Entry("no wildcard", "analyst", "alert:*", false),
		ginkgo.Entry("case-sensitive permission", "analyst", "Alert:Read", false),
		ginkgo.Entry("case-sensitive admin role", "Admin", "user:write", false),
	)

	ginkgo.It("should build an identity with roles and the admin flag", func() {
		u := &datamodel.User{
			ID: 7, Username: "root", Email: strPtr("root@example.com"), IsActive: true,
			Roles: []datamodel.Role{{Name: "admin"}, {Name: "viewer", Permissions: perms("asset:read")}},
		}

		id := resolver.BuildIdentity(u)

		gomega.Expect(id.UserID).To(gomega.Equal(int64(7)))
		gomega.Expect(id.Email).To(gomega.Equal("root@example.com"))
		gomega.Expect(id.Roles).To(gomega.ConsistOf("admin", "viewer"))
		gomega.Expect(id.Admin).To(gomega.BeTrue())
		gomega.Expect(id.Can("user:write")).To(gomega.BeTrue())
		gomega.Expect(id.Permissions.Contains("asset:read")).To(gomega.BeTrue())
	})

	ginkgo.It("should deny everything on a nil identity", func() {
		var id *Identity
		gomega.Expect(id.Can("alert:read")).To(gomega.BeFalse())
	})
})
