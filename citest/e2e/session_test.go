package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/etiennegwiavander/linguaspark-sub009/citest/testutil"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var _ = Describe("Session Workflows", func() {
	Describe("Basic Session Lifecycle", func() {
		It("should create a new session", func() {
			url := testutil.SourceURL("create")
			session, err := client.CreateSession(ctx, url, types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ID).NotTo(BeEmpty())
			Expect(session.SourceURL).To(Equal(url))
			Expect(session.Status).To(Equal(types.StatusStarted))
			Expect(session.RetryCount).To(BeZero())
		})

		It("should default the extraction mode", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("mode"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Mode).To(Equal(types.ModeFullPage))
		})

		It("should reject an unknown mode", func() {
			resp, err := client.Post(ctx, "/session", map[string]string{
				"sourceUrl": testutil.SourceURL("bad-mode"),
				"mode":      "screenshot",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should retrieve and list sessions", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("list"), types.ModeSelection)
			Expect(err).NotTo(HaveOccurred())

			retrieved, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(session.ID))

			sessions, err := client.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, len(sessions))
			for i, s := range sessions {
				ids[i] = s.ID
			}
			Expect(ids).To(ContainElement(session.ID))
		})

		It("should return 404 for a missing session", func() {
			resp, err := client.Get(ctx, "/session/does-not-exist")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			detail, err := resp.Error()
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.Code).NotTo(BeEmpty())
		})
	})

	Describe("Status Transitions", func() {
		It("should move forward through the pipeline", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("forward"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())

			for _, status := range []types.SessionStatus{types.StatusExtracting, types.StatusValidating} {
				resp, err := client.UpdateStatus(ctx, session.ID, status)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())
			}

			resp, err := client.Post(ctx, "/session/"+session.ID+"/complete", map[string]any{
				"content": map[string]any{"text": "The tide rises.", "title": "Tides"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			done, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(types.StatusComplete))
			Expect(done.EndTime).NotTo(BeNil())
			Expect(done.ExtractedContent).NotTo(BeNil())
		})

		It("should refuse to move backwards", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("backward"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.UpdateStatus(ctx, session.ID, types.StatusValidating)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, err = client.UpdateStatus(ctx, session.ID, types.StatusExtracting)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("Retry Cap", func() {
		It("should allow retries until the cap is reached", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("retry"), types.ModeFullPage)
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i <= retry.DefaultMax; i++ {
				failed, err := client.FailSession(ctx, session.ID, "network down")
				Expect(err).NotTo(HaveOccurred())
				Expect(failed.Status).To(Equal(types.StatusFailed))

				result, err := client.RetrySession(ctx, session.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Retried).To(BeTrue())
				Expect(result.RetryCount).To(Equal(i))
			}

			_, err = client.FailSession(ctx, session.ID, "network down")
			Expect(err).NotTo(HaveOccurred())

			result, err := client.RetrySession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Retried).To(BeFalse())
			Expect(result.Exhausted).To(BeTrue())

			final, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(final.Status).To(Equal(types.StatusFailed))
			Expect(final.RetryCount).To(Equal(retry.DefaultMax))
		})

		It("should not retry a session that has not failed", func() {
			session, err := client.CreateSession(ctx, testutil.SourceURL("not-failed"), types.ModeFullPage)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Post(ctx, "/session/"+session.ID+"/retry", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("History and Analytics", func() {
		It("should record terminal outcomes", func() {
			before, err := client.Analytics(ctx)
			Expect(err).NotTo(HaveOccurred())

			ok, err := client.CreateSession(ctx, testutil.SourceURL("history-ok"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())
			resp, err := client.Post(ctx, "/session/"+ok.ID+"/complete", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), resp.String())

			bad, err := client.CreateSession(ctx, testutil.SourceURL("history-bad"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())
			_, err = client.FailSession(ctx, bad.ID, "paywall detected")
			Expect(err).NotTo(HaveOccurred())

			entries, err := client.History(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].SessionID).To(Equal(bad.ID))
			Expect(entries[0].Status).To(Equal(types.StatusFailed))
			Expect(entries[0].Error).To(Equal("paywall detected"))
			Expect(entries[1].SessionID).To(Equal(ok.ID))
			Expect(entries[1].Status).To(Equal(types.StatusComplete))

			after, err := client.Analytics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.SuccessfulExtractions).To(Equal(before.SuccessfulExtractions + 1))
			Expect(after.FailedExtractions).To(Equal(before.FailedExtractions + 1))
			Expect(after.TotalExtractions).To(Equal(before.TotalExtractions + 2))

			errs := make([]string, len(after.MostCommonErrors))
			for i, e := range after.MostCommonErrors {
				errs[i] = e.Error
			}
			Expect(errs).To(ContainElement("paywall detected"))
		})

		It("should reject a negative limit", func() {
			resp, err := client.Get(ctx, "/history", testutil.WithQuery(map[string]string{"limit": "-1"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Session Events", func() {
		It("should stream only the watched session", func() {
			target, err := client.CreateSession(ctx, testutil.SourceURL("watched"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())
			other, err := client.CreateSession(ctx, testutil.SourceURL("unwatched"), types.ModeArticle)
			Expect(err).NotTo(HaveOccurred())

			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, target.ID)).To(Succeed())
			defer sse.Close()

			_, err = client.FailSession(ctx, other.ID, "ignored")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.FailSession(ctx, target.ID, "watched failure")
			Expect(err).NotTo(HaveOccurred())

			evt, err := sse.WaitForEvent("session.failed", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			s, err := evt.Session()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ID).To(Equal(target.ID))
			Expect(s.Error).To(Equal("watched failure"))
		})
	})
})
