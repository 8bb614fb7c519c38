package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/pkg/logger"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = ginkgo.Describe("Handler", func() {
	var (
		store     *memStore
		tokens    *JWTTokenService
		publisher *recordingPublisher
		handler   *Handler
	)

	ginkgo.BeforeEach(func() {
		store = newMemStore(fixtureUsers()...)
		publisher = &recordingPublisher{}

		var err error
		tokens, err = NewJWTTokenService(TokenConfig{Secret: testSecret}, logger.Discard(), nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		svc := NewService(store, NewBcryptHasher(bcrypt.MinCost, 0, nil), tokens,
			NewPermissionResolver(internal.DefaultAdminRoles),
			WithDenylist(newMemDenylist()),
			WithEventPublisher(publisher),
			WithLogger(logger.Discard()))
		handler = NewHandler(svc)
	})

	do := func(h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			if s, ok := body.(string); ok {
				buf.WriteString(s)
			} else {
				gomega.Expect(json.NewEncoder(&buf).Encode(body)).To(gomega.Succeed())
			}
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorBody {
		var body errorBody
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
		return body
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	accessFor := func(username string) string {
		t, err := tokens.IssueAccessToken(username)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return t
	}

	ginkgo.Describe("Login", func() {
		ginkgo.It("should return a token pair and the user", func() {
			// When
			rec := do(http.HandlerFunc(handler.Login), http.MethodPost, "/auth/login", "",
				LoginDTO{Username: "alice", Password: testPassword})

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
				TokenType    string `json:"token_type"`
				ExpiresIn    int64  `json:"expires_in"`
				User         struct {
					Username    string   `json:"username"`
					Permissions []string `json:"permissions"`
				} `json:"user"`
			}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.RefreshToken).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.TokenType).To(gomega.Equal("bearer"))
			gomega.Expect(resp.ExpiresIn).To(gomega.Equal(int64(DefaultAccessTTL / time.Second)))
			gomega.Expect(resp.User.Username).To(gomega.Equal("alice"))
			gomega.Expect(resp.User.Permissions).To(gomega.ContainElement("alert:write"))
		})

		ginkgo.It("should answer 401 with a bearer challenge on bad credentials", func() {
			rec := do(http.HandlerFunc(handler.Login), http.MethodPost, "/auth/login", "",
				LoginDTO{Username: "alice", Password: "nope-nope"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Header().Get("WWW-Authenticate")).To(gomega.Equal("Bearer"))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidCredentials)))
		})

		ginkgo.It("should answer the inactive case exactly like a wrong password", func() {
			wrong := do(http.HandlerFunc(handler.Login), http.MethodPost, "/auth/login", "",
				LoginDTO{Username: "alice", Password: "nope-nope"})
			inactive := do(http.HandlerFunc(handler.Login), http.MethodPost, "/auth/login", "",
				LoginDTO{Username: "bob", Password: testPassword})

			gomega.Expect(inactive.Code).To(gomega.Equal(wrong.Code))
			gomega.Expect(inactive.Body.String()).To(gomega.Equal(wrong.Body.String()))
		})

		ginkgo.DescribeTable("should reject malformed requests with 400",
			func(body interface{}) {
				rec := do(http.HandlerFunc(handler.Login), http.MethodPost, "/auth/login", "", body)

				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
				gomega.Expect(decodeError(rec).Error.Type).To(gomega.Equal(string(internal.ErrorTypeValidation)))
			},
			ginkgo.Entry("not json", "{not json"),
			ginkgo.Entry("blank username", LoginDTO{Username: "   ", Password: "x"}),
			ginkgo.Entry("missing password", LoginDTO{Username: "alice"}),
		)
	})

	ginkgo.Describe("LoginOAuth", func() {
		postForm := func(form url.Values) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/auth/login/oauth", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.LoginOAuth(rec, req)
			return rec
		}

		ginkgo.It("should issue the same response shape as the JSON login", func() {
			// Given an OAuth2 password grant
			form := url.Values{"grant_type": {"password"}, "username": {"alice"}, "password": {testPassword}}

			// When
			rec := postForm(form)

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp AuthTokens
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"username":"alice"`))
			gomega.Expect(resp.TokenType).To(gomega.Equal("bearer"))
			claims, err := tokens.VerifyAccessToken(resp.AccessToken)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.Subject).To(gomega.Equal("alice"))
			_, err = tokens.VerifyRefreshToken(resp.RefreshToken)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should accept a form without grant_type", func() {
			rec := postForm(url.Values{"username": {"alice"}, "password": {testPassword}})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should answer 401 with a bearer challenge on bad credentials", func() {
			rec := postForm(url.Values{"username": {"alice"}, "password": {"nope-nope"}})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Header().Get("WWW-Authenticate")).To(gomega.Equal("Bearer"))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidCredentials)))
		})

		ginkgo.DescribeTable("should reject unusable forms with 400",
			func(form url.Values) {
				rec := postForm(form)

				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
				gomega.Expect(decodeError(rec).Error.Type).To(gomega.Equal(string(internal.ErrorTypeValidation)))
			},
			ginkgo.Entry("other grant type", url.Values{"grant_type": {"client_credentials"}, "username": {"alice"}, "password": {testPassword}}),
			ginkgo.Entry("missing username", url.Values{"password": {testPassword}}),
			ginkgo.Entry("missing password", url.Values{"username": {"alice"}}),
		)

		ginkgo.It("should not read credentials from a JSON body", func() {
			rec := do(http.HandlerFunc(handler.LoginOAuth), http.MethodPost, "/auth/login/oauth", "",
				LoginDTO{Username: "alice", Password: testPassword})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("RefreshToken", func() {
		ginkgo.It("should return a new access token only", func() {
			refresh, _ := tokens.IssueRefreshToken("alice")

			rec := do(http.HandlerFunc(handler.RefreshToken), http.MethodPost, "/auth/refresh", "",
				RefreshTokenDTO{RefreshToken: refresh})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp AuthTokens
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.RefreshToken).To(gomega.BeEmpty())
		})

		ginkgo.It("should reject an access token", func() {
			rec := do(http.HandlerFunc(handler.RefreshToken), http.MethodPost, "/auth/refresh", "",
				RefreshTokenDTO{RefreshToken: accessFor("alice")})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequireAuth", func() {
		var me http.Handler

		ginkgo.BeforeEach(func() {
			me = handler.RequireAuth(http.HandlerFunc(handler.Me))
		})

		ginkgo.It("should expose the identity to the next handler", func() {
			rec := do(me, http.MethodGet, "/auth/me", accessFor("alice"), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var id struct {
				Username string   `json:"username"`
				Roles    []string `json:"roles"`
			}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &id)).To(gomega.Succeed())
			gomega.Expect(id.Username).To(gomega.Equal("alice"))
			gomega.Expect(id.Roles).To(gomega.Equal([]string{"analyst"}))
		})

		ginkgo.It("should set the subject for request logging", func() {
			var subject string
			h := handler.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject = internal.SubjectFromContext(r.Context())
			}))

			do(h, http.MethodGet, "/", accessFor("alice"), nil)
			gomega.Expect(subject).To(gomega.Equal("alice"))
		})

		ginkgo.It("should answer 401 without a token", func() {
			rec := do(me, http.MethodGet, "/auth/me", "", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Header().Get("WWW-Authenticate")).To(gomega.Equal("Bearer"))
		})

		ginkgo.It("should answer 401 for a non-bearer scheme", func() {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.Header.Set("Authorization", "Basic "+accessFor("alice"))
			rec := httptest.NewRecorder()

			me.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should answer 403 for an inactive user", func() {
			rec := do(me, http.MethodGet, "/auth/me", accessFor("bob"), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeUserInactive)))
		})
	})

	ginkgo.Describe("RequirePermission", func() {
		ginkgo.Context("on its own", func() {
			ginkgo.It("should pass a holder of the permission", func() {
				rec := do(handler.RequirePermission("alert:read")(okHandler), http.MethodGet, "/", accessFor("alice"), nil)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			})

			ginkgo.It("should answer 403 naming the permission", func() {
				rec := do(handler.RequirePermission("user:write")(okHandler), http.MethodGet, "/", accessFor("alice"), nil)

				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
				gomega.Expect(decodeError(rec).Error.Message).To(gomega.ContainSubstring("user:write"))
			})

			ginkgo.It("should answer 401 without a token", func() {
				rec := do(handler.RequirePermission("alert:read")(okHandler), http.MethodGet, "/", "", nil)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			})
		})

		ginkgo.Context("behind RequireAuth", func() {
			chain := func(permission string) http.Handler {
				return handler.RequireAuth(handler.RequirePermission(permission)(okHandler))
			}

			ginkgo.It("should reuse the resolved identity", func() {
				rec := do(chain("asset:read"), http.MethodGet, "/", accessFor("alice"), nil)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			})

			ginkgo.It("should let an admin through", func() {
				rec := do(chain("user:write"), http.MethodGet, "/", accessFor("root"), nil)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			})

			ginkgo.It("should deny a missing permission", func() {
				rec := do(chain("user:write"), http.MethodGet, "/", accessFor("alice"), nil)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			})
		})
	})

	ginkgo.Describe("RequireAdmin", func() {
		var h http.Handler

		ginkgo.BeforeEach(func() {
			h = handler.RequireAuth(handler.RequireAdmin()(okHandler))
		})

		ginkgo.It("should pass an admin", func() {
			gomega.Expect(do(h, http.MethodGet, "/", accessFor("root"), nil).Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should answer 403 for everyone else", func() {
			gomega.Expect(do(h, http.MethodGet, "/", accessFor("alice"), nil).Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should answer 401 when used without authentication", func() {
			rec := do(handler.RequireAdmin()(okHandler), http.MethodGet, "/", "", nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("OptionalAuth", func() {
		var (
			seen *Identity
			h    http.Handler
		)

		ginkgo.BeforeEach(func() {
			seen = nil
			h = handler.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = IdentityFromContext(r.Context())
			}))
		})

		ginkgo.It("should attach the identity for a valid token", func() {
			do(h, http.MethodGet, "/", accessFor("alice"), nil)
			gomega.Expect(seen).ToNot(gomega.BeNil())
			gomega.Expect(seen.Username).To(gomega.Equal("alice"))
		})

		ginkgo.It("should let an invalid token through anonymously", func() {
			rec := do(h, http.MethodGet, "/", "garbage", nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(seen).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("should revoke the presented token", func() {
			token := accessFor("alice")

			rec := do(http.HandlerFunc(handler.Logout), http.MethodPost, "/auth/logout", token, nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))

			rec = do(handler.RequireAuth(okHandler), http.MethodGet, "/", token, nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("Permissions", func() {
		ginkgo.It("should list sorted permissions and roles", func() {
			rec := do(handler.RequireAuth(http.HandlerFunc(handler.Permissions)), http.MethodGet, "/", accessFor("alice"), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp PermissionsResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Permissions).To(gomega.Equal([]string{"alert:read", "alert:write", "asset:read"}))
			gomega.Expect(resp.Roles).To(gomega.Equal([]string{"analyst"}))
		})
	})

	ginkgo.Describe("ChangePassword", func() {
		ginkgo.It("should answer 204 on success", func() {
			h := handler.RequireAuth(http.HandlerFunc(handler.ChangePassword))
			rec := do(h, http.MethodPost, "/", accessFor("alice"),
				ChangePasswordDTO{OldPassword: testPassword, NewPassword: "another-password"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
		})

		ginkgo.It("should answer 400 for a new password over 72 bytes", func() {
			h := handler.RequireAuth(http.HandlerFunc(handler.ChangePassword))
			rec := do(h, http.MethodPost, "/", accessFor("alice"),
				ChangePasswordDTO{OldPassword: testPassword, NewPassword: strings.Repeat("密", 30)})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(store.updates).To(gomega.BeZero())
		})

		ginkgo.It("should answer 401 without an identity", func() {
			rec := do(http.HandlerFunc(handler.ChangePassword), http.MethodPost, "/", "",
				ChangePasswordDTO{OldPassword: testPassword, NewPassword: "another-password"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("password reset", func() {
		ginkgo.It("should answer identically for known and unknown emails", func() {
			known := do(http.HandlerFunc(handler.RequestPasswordReset), http.MethodPost, "/", "",
				PasswordResetRequestDTO{Email: "alice@example.com"})
			unknown := do(http.HandlerFunc(handler.RequestPasswordReset), http.MethodPost, "/", "",
				PasswordResetRequestDTO{Email: "nobody@example.com"})

			gomega.Expect(known.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(unknown.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(unknown.Body.String()).To(gomega.Equal(known.Body.String()))
		})

		ginkgo.It("should reject a malformed email", func() {
			rec := do(http.HandlerFunc(handler.RequestPasswordReset), http.MethodPost, "/", "",
				PasswordResetRequestDTO{Email: "not-an-email"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should complete the reset with the issued token", func() {
			do(http.HandlerFunc(handler.RequestPasswordReset), http.MethodPost, "/", "",
				PasswordResetRequestDTO{Email: "alice@example.com"})

			rec := do(http.HandlerFunc(handler.ConfirmPasswordReset), http.MethodPost, "/", "",
				PasswordResetConfirmDTO{Token: publisher.lastResetToken(), NewPassword: "reset-password-1"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			_, err := handler.Service.Authenticate(context.Background(), "alice", "reset-password-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should reject a password bcrypt cannot take with 400 and keep the old one", func() {
			// Given a valid reset token for alice
			do(http.HandlerFunc(handler.RequestPasswordReset), http.MethodPost, "/", "",
				PasswordResetRequestDTO{Email: "alice@example.com"})

			// When the new password is 100 bytes long
			rec := do(http.HandlerFunc(handler.ConfirmPasswordReset), http.MethodPost, "/", "",
				PasswordResetConfirmDTO{Token: publisher.lastResetToken(), NewPassword: strings.Repeat("a", 100)})

			// Then it is a validation failure, not a hashing failure
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(decodeError(rec).Error.Type).To(gomega.Equal("VALIDATION_ERROR"))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("INVALID_PASSWORD"))
			_, err := handler.Service.Authenticate(context.Background(), "alice", testPassword)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should reject a short new password with 400", func() {
			rec := do(http.HandlerFunc(handler.ConfirmPasswordReset), http.MethodPost, "/", "",
				PasswordResetConfirmDTO{Token: "whatever", NewPassword: "short"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})
})
