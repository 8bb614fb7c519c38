package internal

import (
	"os"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func validConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 5},
		Security: SecurityConfig{JWTSecret: strings.Repeat("s", 32)},
	}
	cfg.ApplyDefaults()
	return cfg
}

var _ = ginkgo.Describe("Config", func() {
	ginkgo.Describe("ApplyDefaults", func() {
		ginkgo.It("should fill token lifetimes, cost and admin roles", func() {
			cfg := &Config{}
			cfg.ApplyDefaults()

			gomega.Expect(cfg.Security.AccessTokenTTL()).To(gomega.Equal(120 * time.Minute))
			gomega.Expect(cfg.Security.RefreshTokenDuration).To(gomega.Equal(7 * 24 * time.Hour))
			gomega.Expect(cfg.Security.PasswordResetTokenDuration).To(gomega.Equal(time.Hour))
			gomega.Expect(cfg.Security.BCryptCost).To(gomega.Equal(12))
			gomega.Expect(cfg.Security.AdminRoles).To(gomega.Equal(DefaultAdminRoles))
			gomega.Expect(cfg.Observability.Metrics.Path).To(gomega.Equal("/metrics"))
		})

		ginkgo.It("should not share the default admin role slice", func() {
			cfg := &Config{}
			cfg.ApplyDefaults()
			cfg.Security.AdminRoles[0] = "changed"

			gomega.Expect(DefaultAdminRoles[0]).To(gomega.Equal("admin"))
		})

		ginkgo.It("should keep explicit values", func() {
			cfg := &Config{Security: SecurityConfig{AccessTokenExpireMinutes: 15, AdminRoles: []string{"root"}}}
			cfg.ApplyDefaults()

			gomega.Expect(cfg.Security.AccessTokenTTL()).To(gomega.Equal(15 * time.Minute))
			gomega.Expect(cfg.Security.AdminRoles).To(gomega.Equal([]string{"root"}))
		})
	})

	ginkgo.Describe("Validate", func() {
		ginkgo.It("should accept a complete configuration", func() {
			gomega.Expect(validConfig().Validate()).To(gomega.Succeed())
		})

		ginkgo.DescribeTable("should reject unsafe settings",
			func(mutate func(*Config), fragment string) {
				cfg := validConfig()
				mutate(cfg)

				err := cfg.Validate()

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(err.Error()).To(gomega.ContainSubstring(fragment))
			},
			ginkgo.Entry("short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "jwt_secret"),
			ginkgo.Entry("empty secret", func(c *Config) { c.Security.JWTSecret = "" }, "jwt_secret"),
			ginkgo.Entry("negative access ttl", func(c *Config) { c.Security.AccessTokenExpireMinutes = -1 }, "access_token_expire_minutes"),
			ginkgo.Entry("cost too low", func(c *Config) { c.Security.BCryptCost = 3 }, "bcrypt_cost"),
			ginkgo.Entry("cost too high", func(c *Config) { c.Security.BCryptCost = 32 }, "bcrypt_cost"),
			ginkgo.Entry("negative leeway", func(c *Config) { c.Security.TokenLeeway = -time.Second }, "token_leeway"),
			ginkgo.Entry("idle above open", func(c *Config) { c.Database.MaxIdleConns = 20 }, "max_idle_conns"),
			ginkgo.Entry("read below header timeout", func(c *Config) {
				c.Server.ReadHeaderTimeout = 10 * time.Second
				c.Server.ReadTimeout = time.Second
			}, "read_timeout"),
		)
	})

	ginkgo.Describe("LoadConfigFromEnv", func() {
		setEnv := func(key, value string) {
			prev, had := os.LookupEnv(key)
			gomega.Expect(os.Setenv(key, value)).To(gomega.Succeed())
			ginkgo.DeferCleanup(func() {
				if had {
					_ = os.Setenv(key, prev)
				} else {
					_ = os.Unsetenv(key)
				}
			})
		}

		ginkgo.It("should read security settings from the environment", func() {
			setEnv("JWT_SECRET", strings.Repeat("x", 40))
			setEnv("ACCESS_TOKEN_EXPIRE_MINUTES", "30")
			setEnv("ADMIN_ROLES", " root , ops ,")
			setEnv("SINGLE_USE_RESET_TOKENS", "false")
			setEnv("REDIS_URL", "redis://localhost:6379/0")

			cfg := LoadConfigFromEnv()

			gomega.Expect(cfg.Security.AccessTokenTTL()).To(gomega.Equal(30 * time.Minute))
			gomega.Expect(cfg.Security.AdminRoles).To(gomega.Equal([]string{"root", "ops"}))
			gomega.Expect(cfg.Security.SingleUseResetTokens).To(gomega.BeFalse())
			gomega.Expect(cfg.Redis.Enabled()).To(gomega.BeTrue())
			gomega.Expect(cfg.Validate()).To(gomega.Succeed())
		})

		ginkgo.It("should trust proxy headers only when asked to", func() {
			gomega.Expect(LoadConfigFromEnv().Server.TrustProxyHeaders).To(gomega.BeFalse())

			setEnv("HTTP_TRUST_PROXY_HEADERS", "true")
			gomega.Expect(LoadConfigFromEnv().Server.TrustProxyHeaders).To(gomega.BeTrue())
		})

		ginkgo.It("should ignore unparsable numbers", func() {
			setEnv("BCRYPT_COST", "lots")

			gomega.Expect(LoadConfigFromEnv().Security.BCryptCost).To(gomega.Equal(DefaultBCryptCost))
		})
	})
})
