package bill

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/bill-extractor/internal/reconcile"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newExtraction := func(id string, created time.Time) *Extraction {
		declared := decimal.RequireFromString("180")
		return &Extraction{
			ID:          id,
			Filename:    id + "_bill.pdf",
			ContentType: "application/pdf",
			Pages: []PageResult{{
				PageNo: 1,
				Items: []reconcile.LineItem{
					{Name: "Item A", Quantity: decimal.NewFromInt(2), Amount: decimal.RequireFromString("100"), Confidence: 0.95, Page: "1"},
					{Name: "Item B", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString("80"), Confidence: 0.95, Page: "1"},
				},
				ReconciliationStatus: reconcile.StatusExactMatch,
				Reconciliation: reconcile.Result{
					IsMatch:         true,
					CalculatedTotal: decimal.RequireFromString("180"),
					DeclaredTotal:   &declared,
					Status:          reconcile.StatusExactMatch,
				},
				State: StateReconciled,
			}},
			TotalItemCount: 2,
			CreatedAt:      created,
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveExtraction", func() {
		var (
			extraction *Extraction
			err        error
		)

		BeforeEach(func() {
			extraction = newExtraction("test-id", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveExtraction(extraction)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round trip the page results", func() {
				saved, getErr := db.GetExtraction("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Pages).To(HaveLen(1))
				Expect(saved.Pages[0].Items[1].Name).To(Equal("Item B"))
				Expect(saved.Pages[0].Reconciliation.DeclaredTotal.String()).To(Equal("180"))
				Expect(saved.Pages[0].Items[0].HasRate()).To(BeFalse())
			})
		})

		When("the extraction has no ID", func() {
			BeforeEach(func() {
				extraction.ID = ""
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("GetExtraction", func() {
		When("the extraction does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetExtraction("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListExtractions", func() {
		When("the database is empty", func() {
			It("returns an empty list", func() {
				extractions, err := db.ListExtractions()
				Expect(err).NotTo(HaveOccurred())
				Expect(extractions).NotTo(BeNil())
				Expect(extractions).To(BeEmpty())
			})
		})

		When("extractions exist", func() {
			BeforeEach(func() {
				Expect(db.SaveExtraction(newExtraction("old", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveExtraction(newExtraction("new", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("returns them newest first", func() {
				extractions, err := db.ListExtractions()
				Expect(err).NotTo(HaveOccurred())
				Expect(extractions).To(HaveLen(2))
				Expect(extractions[0].ID).To(Equal("new"))
				Expect(extractions[1].ID).To(Equal("old"))
			})
		})
	})

	Describe("DeleteExtraction", func() {
		When("the extraction exists", func() {
			BeforeEach(func() {
				Expect(db.SaveExtraction(newExtraction("test-id", time.Now()))).To(Succeed())
			})

			It("removes it", func() {
				Expect(db.DeleteExtraction("test-id")).To(Succeed())
				_, err := db.GetExtraction("test-id")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the extraction does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(db.DeleteExtraction("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("reopening the database", func() {
		It("keeps saved extractions", func() {
			Expect(db.SaveExtraction(newExtraction("test-id", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			saved, err := db.GetExtraction("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.TotalItemCount).To(Equal(2))
		})
	})
})
