// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/modhost/modhost/internal/config"
	"github.com/modhost/modhost/internal/profile"
	"github.com/modhost/modhost/internal/session"
	"github.com/modhost/modhost/internal/update"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestSessionPkg(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "session pkg Tests", Label("ci", "internal", "session"))
}

var _ = BeforeSuite(func() {
	slog.SetDefault(slog.New(logr.ToSlogHandler(GinkgoLogr)))
	gin.SetMode(gin.ReleaseMode)
})

var _ = Describe("session pkg", Label("integration"), func() {
	var cfg *config.Config
	var prof *profile.Profile
	var requests atomic.Int32
	var block chan struct{}

	BeforeEach(func() {
		requests.Store(0)
		block = nil

		router := gin.New()
		handler := func(c *gin.Context) {
			requests.Add(1)
			if block != nil {
				select {
				case <-block:
				case <-c.Request.Context().Done():
					return
				}
			}
			c.Data(http.StatusOK, "application/json", []byte(`{"app":{"version":"2.0.0"}}`))
		}
		router.GET("/versions.json", handler)
		router.POST("/versions.json", handler)
		server := httptest.NewServer(router)
		DeferCleanup(server.Close)

		dataDir := GinkgoT().TempDir()
		cfg = &config.Config{
			DataDir: dataDir,
			Update: config.UpdateConfig{
				URL:             server.URL + "/versions.json",
				MaxResponseSize: "1MiB",
			},
		}

		var err error
		prof, err = profile.Load(filepath.Join(dataDir, profile.FileName))
		Expect(err).ToNot(HaveOccurred())
		Expect(prof.SetAppVersion("1.0.0")).To(Succeed())
	})

	newManager := func(created *atomic.Int32, closed *atomic.Int32) *session.Manager {
		return session.NewManager(cfg, prof,
			session.WithNamespaceCreator(func(uint32) (io.Closer, error) {
				created.Add(1)
				return closerFunc(func() error {
					closed.Add(1)
					return nil
				}), nil
			}),
			session.WithAccessGranter(func(string) error { return errors.New("not supported") }))
	}

	Describe("UpdateOptions", func() {
		It("derives the options from config", func() {
			cfg.Portable = true

			options, err := session.NewManager(cfg, prof).UpdateOptions()

			Expect(err).ToNot(HaveOccurred())
			Expect(options.URL).To(Equal(cfg.Update.URL))
			Expect(options.Flags).To(Equal(update.FlagPortable))
			Expect(options.MaxResponseBytes).To(Equal(int64(1 << 20)))
			Expect(options.Version).ToNot(BeEmpty())
		})

		It("returns error on invalid size", func() {
			cfg.Update.MaxResponseSize = "huge"

			_, err := session.NewManager(cfg, prof).UpdateOptions()

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CheckForUpdates", func() {
		It("merges the response into the profile", func(ctx context.Context) {
			result, err := session.NewManager(cfg, prof).CheckForUpdates(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Err).ToNot(HaveOccurred())
			Expect(result.UpdateStatus).To(Equal(update.StatusUpdatesAvailable))
			Expect(prof.LatestAppVersion()).To(Equal("2.0.0"))
			Expect(requests.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Run", func() {
		It("checks right away and periodically until cancelled", func() {
			cfg.Update.Interval = 20 * time.Millisecond
			var created, closed, results atomic.Int32
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() {
				defer GinkgoRecover()
				done <- newManager(&created, &closed).Run(ctx, func(result update.Result) {
					Expect(result.Err).ToNot(HaveOccurred())
					results.Add(1)
				})
			}()

			Eventually(results.Load).Should(BeNumerically(">=", 2))
			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(created.Load()).To(Equal(int32(1)))
			Expect(closed.Load()).To(Equal(int32(1)))
		})

		It("checks only once without interval", func() {
			var created, closed, results atomic.Int32
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() {
				defer GinkgoRecover()
				done <- newManager(&created, &closed).Run(ctx, func(update.Result) { results.Add(1) })
			}()

			Eventually(results.Load).Should(Equal(int32(1)))
			Consistently(requests.Load, 100*time.Millisecond).Should(Equal(int32(1)))
			cancel()

			Eventually(done).Should(Receive(BeNil()))
		})

		It("aborts a pending check when cancelled", func() {
			block = make(chan struct{})
			DeferCleanup(func() { close(block) })
			var created, closed, results atomic.Int32
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() {
				defer GinkgoRecover()
				done <- newManager(&created, &closed).Run(ctx, func(update.Result) { results.Add(1) })
			}()

			Eventually(requests.Load).Should(Equal(int32(1)))
			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(results.Load()).To(BeZero())
			Expect(closed.Load()).To(Equal(int32(1)))
		})

		It("fails when the namespace cannot be created", func(ctx context.Context) {
			nsErr := errors.New("exists")
			manager := session.NewManager(cfg, prof,
				session.WithAccessGranter(func(string) error { return nil }),
				session.WithNamespaceCreator(func(uint32) (io.Closer, error) { return nil, nsErr }))

			err := manager.Run(ctx, nil)

			Expect(err).To(MatchError(nsErr))
			Expect(requests.Load()).To(BeZero())
		})
	})
})
