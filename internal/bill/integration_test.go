package bill_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

var _ = Describe("Integration", func() {
	var (
		db        bill.DB
		store     bill.Storage
		model     *ghttp.Server
		ghServer  *ghttp.Server
		server    *bill.Server
		bodies    []string
		err       error
		extractor *scanning.Ollama
	)

	chatReply := func(content string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			bodies = append(bodies, string(body))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"message":           map[string]any{"role": "assistant", "content": content},
				"done":              true,
				"prompt_eval_count": 50,
				"eval_count":        10,
			})
		}
	}

	pageImage := func() []byte {
		img := image.NewRGBA(image.Rect(0, 0, 40, 30))
		for x := 0; x < 40; x++ {
			img.Set(x, 15, color.Black)
		}
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		return buf.Bytes()
	}

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()
		bodies = nil

		db, err = bill.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		store, err = bill.NewLocalStorage(filepath.Join(tempDir, "documents"))
		Expect(err).NotTo(HaveOccurred())

		model = ghttp.NewServer()
		extractor, err = scanning.NewOllama(model.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		extractor.SetRetryPolicy(scanning.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1})

		opts := bill.DefaultOptions()
		opts.CallTimeout = 5 * time.Second
		service := bill.NewService(db, extractor, store, scanning.NewConverter(800), reconcile.DefaultConfig(), opts)
		server = bill.NewServer(service, bill.BasicAuth{}, nil)
		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		ghServer.Close()
		model.Close()
		db.Close()
	})

	It("extracts, corrects and stores a bill", func() {
		model.AppendHandlers(
			chatReply(`{
				"extraction_reasoning": "single table",
				"page_type": "Pharmacy",
				"line_items": [
					{"item_name": "Item A", "quantity": 2, "rate": 50, "amount": 100},
					{"item_name": "Item B", "quantity": 1, "rate": "80.00", "amount": "Rs. 80"},
					{"item_name": "Tax", "amount": 180}
				],
				"bill_total": 225
			}`),
			chatReply("```json\n{\"analysis\": \"missed a row\", \"corrections\": [{\"action\": \"add\", \"item_name\": \"Item C\", \"quantity\": 1, \"rate\": 45, \"amount\": 45}]}\n```"),
		)
		ghServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP)

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "pharmacy bill.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(pageImage())
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/extract", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var envelope struct {
			IsSuccess bool            `json:"is_success"`
			Data      bill.Extraction `json:"data"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&envelope)).To(Succeed())
		Expect(envelope.IsSuccess).To(BeTrue())

		extraction := envelope.Data
		Expect(extraction.Pages).To(HaveLen(1))
		page := extraction.Pages[0]
		Expect(page.PageType).To(Equal("Pharmacy"))
		Expect(page.ReconciliationStatus).To(Equal(reconcile.StatusExactMatch))
		Expect(page.RetryCount).To(Equal(1))
		Expect(page.Items).To(HaveLen(3))
		Expect(page.Removed).To(HaveLen(1))
		Expect(page.Removed[0].Item.Name).To(Equal("Tax"))
		Expect(extraction.TotalItemCount).To(Equal(3))
		Expect(extraction.TokenUsage).To(Equal(scanning.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120}))

		By("sending the mismatch back to the model")
		Expect(bodies).To(HaveLen(2))
		Expect(bodies[1]).To(ContainSubstring("I extracted 2 line items"))

		By("storing the document and the result")
		saved, err := db.GetExtraction(extraction.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Pages[0].Reconciliation.CalculatedTotal.String()).To(Equal("225"))
		_, err = store.Get(saved.Filename)
		Expect(err).NotTo(HaveOccurred())

		By("serving the stored extraction")
		getResp, err := http.Get(ghServer.URL() + "/api/extractions/" + extraction.ID)
		Expect(err).NotTo(HaveOccurred())
		defer getResp.Body.Close()
		Expect(getResp.StatusCode).To(Equal(http.StatusOK))
	})
})
