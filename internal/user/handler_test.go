package user_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/auth"
	"github.com/frahmantamala/authcore/internal/user"
	"github.com/frahmantamala/authcore/internal/user/postgres"
	"github.com/frahmantamala/authcore/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = ginkgo.Describe("UserHandler", func() {
	var router chi.Router

	ginkgo.BeforeEach(func() {
		svc := user.NewService(
			postgres.NewRepository(openTestDB()),
			auth.NewBcryptHasher(bcrypt.MinCost, 0, nil),
			auth.NewPermissionResolver(internal.DefaultAdminRoles),
			logger.Discard(),
		)
		h := user.NewHandler(svc)

		router = chi.NewRouter()
		router.Post("/users", h.CreateUser)
		router.Get("/users/{id}", h.GetUser)
		router.Patch("/users/{id}/activate", h.Activate)
		router.Patch("/users/{id}/deactivate", h.Deactivate)
		router.Post("/users/{id}/roles", h.AssignRole)
		router.Delete("/users/{id}/roles/{role}", h.RemoveRole)
	})

	send := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			gomega.Expect(json.NewEncoder(&buf).Encode(body)).To(gomega.Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeUser := func(rec *httptest.ResponseRecorder) user.User {
		var u user.User
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &u)).To(gomega.Succeed())
		return u
	}

	ginkgo.It("should create a user and never echo the password", func() {
		// When
		rec := send(http.MethodPost, "/users", user.CreateUserDTO{
			Username: "alice", Email: "alice@example.com", Password: "password123", Roles: []string{"analyst"},
		})

		// Then
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		gomega.Expect(rec.Body.String()).ToNot(gomega.ContainSubstring("password"))
		u := decodeUser(rec)
		gomega.Expect(u.Username).To(gomega.Equal("alice"))
		gomega.Expect(u.Roles).To(gomega.Equal([]string{"analyst"}))
	})

	ginkgo.It("should answer 409 for a duplicate username", func() {
		send(http.MethodPost, "/users", user.CreateUserDTO{Username: "alice", Password: "password123"})

		rec := send(http.MethodPost, "/users", user.CreateUserDTO{Username: "alice", Password: "password123"})
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
	})

	ginkgo.It("should walk a user through deactivate, role changes and lookup", func() {
		created := decodeUser(send(http.MethodPost, "/users", user.CreateUserDTO{Username: "alice", Password: "password123"}))
		base := "/users/" + strconv.FormatInt(created.ID, 10)

		rec := send(http.MethodPatch, base+"/deactivate", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(decodeUser(rec).IsActive).To(gomega.BeFalse())

		rec = send(http.MethodPatch, base+"/activate", nil)
		gomega.Expect(decodeUser(rec).IsActive).To(gomega.BeTrue())

		rec = send(http.MethodPost, base+"/roles", user.AssignRoleDTO{Role: "viewer"})
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(decodeUser(rec).Permissions).To(gomega.Equal([]string{"asset:read"}))

		rec = send(http.MethodDelete, base+"/roles/viewer", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(decodeUser(rec).Roles).To(gomega.BeEmpty())

		rec = send(http.MethodGet, base, nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(decodeUser(rec).Username).To(gomega.Equal("alice"))
	})

	ginkgo.DescribeTable("should map failures to status codes",
		func(method, path string, body interface{}, status int) {
			gomega.Expect(send(method, path, body).Code).To(gomega.Equal(status))
		},
		ginkgo.Entry("non-numeric id", http.MethodGet, "/users/abc", nil, http.StatusBadRequest),
		ginkgo.Entry("zero id", http.MethodGet, "/users/0", nil, http.StatusBadRequest),
		ginkgo.Entry("unknown user", http.MethodGet, "/users/42", nil, http.StatusNotFound),
		ginkgo.Entry("unknown user deactivate", http.MethodPatch, "/users/42/deactivate", nil, http.StatusNotFound),
		ginkgo.Entry("blank role", http.MethodPost, "/users/42/roles", user.AssignRoleDTO{Role: " "}, http.StatusBadRequest),
		ginkgo.Entry("invalid create body", http.MethodPost, "/users", user.CreateUserDTO{Username: "x", Password: "short"}, http.StatusBadRequest),
		ginkgo.Entry("password over 72 bytes", http.MethodPost, "/users",
			user.CreateUserDTO{Username: "x", Password: strings.Repeat("a", 100)}, http.StatusBadRequest),
	)
})

