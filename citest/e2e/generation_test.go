package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/etiennegwiavander/linguaspark-sub009/citest/testutil"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/server"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var _ = Describe("Lesson Generation", func() {
	var (
		session *types.ExtractionSession
		url     string
	)

	BeforeEach(func() {
		if testServer.MockGen == nil {
			Skip("generation specs need the mock endpoint")
		}
		testServer.MockGen.Reset()

		url = testutil.SourceURL("article")
		var err error
		session, err = client.CreateSession(ctx, url, types.ModeArticle)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Successful Streams", func() {
		It("should return the lesson and complete the session", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "The tide rises twice a day."), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			var out struct {
				SessionID string         `json:"sessionId"`
				Lesson    map[string]any `json:"lesson"`
			}
			Expect(resp.JSON(&out)).To(Succeed())
			Expect(out.SessionID).To(Equal(session.ID))
			Expect(out.Lesson).To(HaveKeyWithValue("title", "Tides"))

			done, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(types.StatusComplete))
		})

		It("should forward the request fields upstream", func() {
			req := testutil.GenerationRequest(url, "The tide rises twice a day.")
			req.StudentLevel = "C1"
			req.LessonType = "grammar"

			resp, err := client.Generate(ctx, session.ID, req, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			requests := testServer.MockGen.GetRequests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Scenario).To(Equal("tides"))
			Expect(requests[0].Body.StudentLevel).To(Equal("C1"))
			Expect(requests[0].Body.LessonType).To(Equal("grammar"))
			Expect(requests[0].Body.SourceURL).To(Equal(url))
		})

		It("should relay progress over the event stream", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, session.ID)).To(Succeed())
			defer sse.Close()

			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "The tide rises twice a day."), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			_, err = sse.WaitForEvent("session.completed", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			steps := func() []string {
				var out []string
				for _, evt := range testutil.NewEventMatcher(sse.GetAllEvents()).FilterType("generation.progress") {
					p, err := evt.Progress()
					Expect(err).NotTo(HaveOccurred())
					Expect(p.SessionID).To(Equal(session.ID))
					Expect(p.Progress).To(BeNumerically(">=", 0))
					Expect(p.Progress).To(BeNumerically("<=", 100))
					out = append(out, p.Step)
				}
				return out
			}
			Eventually(steps, 2*time.Second, 50*time.Millisecond).Should(ContainElements("Analyzing content", "Writing vocabulary"))
		})
	})

	Describe("Failed Streams", func() {
		It("should report an upstream error record", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "Daily quota exceeded."), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			detail, err := resp.Error()
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.Code).To(Equal(server.ErrCodeUpstreamError))
			Expect(detail.Message).To(Equal("quota reached"))
			Expect(detail.Details).To(HaveKeyWithValue("retriesExhausted", false))

			failed, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Status).To(Equal(types.StatusFailed))
			Expect(failed.Error).To(Equal("quota reached"))
		})

		It("should report a non-2xx upstream status", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "The servers are overloaded."), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			detail, err := resp.Error()
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.Message).To(Equal("try later"))
			Expect(detail.Details).To(HaveKeyWithValue("statusCode", BeNumerically("==", http.StatusServiceUnavailable)))
		})

		It("should fail a stream that ends without a terminal record", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "A truncated stream."), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			failed, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Status).To(Equal(types.StatusFailed))
		})

		It("should reject an empty source text", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, ""), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(testServer.MockGen.GetRequests()).To(BeEmpty())
		})
	})

	Describe("Retries", func() {
		It("should recover from a transient failure", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "A flaky source."), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())
			Expect(testServer.MockGen.Hits("flaky")).To(Equal(2))

			done, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(types.StatusComplete))
			Expect(done.RetryCount).To(Equal(1))
		})

		It("should stop once retries are exhausted", func() {
			resp, err := client.Generate(ctx, session.ID, testutil.GenerationRequest(url, "Daily quota exceeded."), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			detail, err := resp.Error()
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.Details).To(HaveKeyWithValue("retriesExhausted", true))
			Expect(testServer.MockGen.Hits("quota")).To(Equal(retry.DefaultMax + 1))

			failed, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Status).To(Equal(types.StatusFailed))
			Expect(failed.RetryCount).To(Equal(retry.DefaultMax))

			entries, err := client.History(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			attempts := 0
			for _, e := range entries {
				if e.SessionID == session.ID {
					attempts++
				}
			}
			Expect(attempts).To(Equal(retry.DefaultMax + 1))
		})
	})
})
