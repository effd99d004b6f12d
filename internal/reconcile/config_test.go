package reconcile

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	Describe("DefaultConfig", func() {
		It("should be valid", func() {
			Expect(DefaultConfig().Validate()).To(Succeed())
		})

		It("should use the tuned thresholds", func() {
			cfg := DefaultConfig()
			Expect(cfg.ReconciliationThresholdPercent).To(Equal(0.01))
			Expect(cfg.MinDiscrepancyForRetryPercent).To(Equal(2.0))
			Expect(cfg.MaxRetryAttempts).To(Equal(3))
			Expect(cfg.ForbiddenKeywords).To(ContainElements("total", "amount due", "carry forward"))
			Expect(cfg.LevyKeywords).To(ContainElements("gst", "discount", "round off"))
			Expect(cfg.LevyKeywords).NotTo(ContainElement("total"))
		})

		It("should return independent keyword slices", func() {
			a := DefaultConfig()
			a.ForbiddenKeywords[0] = "changed"
			Expect(DefaultConfig().ForbiddenKeywords[0]).To(Equal("total"))
		})
	})

	Describe("LoadConfig", func() {
		var (
			path string
			body string
			cfg  Config
			err  error
		)

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "rules.yaml")
		})

		JustBeforeEach(func() {
			Expect(os.WriteFile(path, []byte(body), 0644)).To(Succeed())
			cfg, err = LoadConfig(path)
		})

		When("the file overrides some fields", func() {
			BeforeEach(func() {
				body = `
reconciliation_threshold_percent: 0.5
max_retry_attempts: 1
forbidden_keywords: [total, deposit]
levy_keywords: [deposit]
confidence:
  quantity_outlier: 0.3
`
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should apply the overrides", func() {
				Expect(cfg.ReconciliationThresholdPercent).To(Equal(0.5))
				Expect(cfg.MaxRetryAttempts).To(Equal(1))
				Expect(cfg.ForbiddenKeywords).To(Equal([]string{"total", "deposit"}))
				Expect(cfg.LevyKeywords).To(Equal([]string{"deposit"}))
				Expect(cfg.Confidence.QuantityOutlier).To(Equal(0.3))
			})

			It("should keep defaults for everything else", func() {
				Expect(cfg.MinDiscrepancyForRetryPercent).To(Equal(2.0))
				Expect(cfg.Confidence.Normal).To(Equal(0.95))
			})
		})

		When("the file is not valid YAML", func() {
			BeforeEach(func() {
				body = "max_retry_attempts: [oops"
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("parsing rules file"))
			})
		})

		When("the file sets an invalid value", func() {
			BeforeEach(func() {
				body = "confidence:\n  normal: 1.5\n"
			})

			It("should return a validation error", func() {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("confidence.normal"))
			})
		})
	})

	It("should return defaults when no path is given", func() {
		cfg, err := LoadConfig("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(DefaultConfig()))
	})

	It("should fail for a missing file", func() {
		_, err := LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(MatchError(ContainSubstring("reading rules file")))
	})
})
