package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/giygas/prescription-analyzer/interfaces"
)

type fakePages struct {
	mu    sync.Mutex
	pages map[string]*Page
	err   map[string]error
	urls  []string
}

func (f *fakePages) Scrape(ctx context.Context, url string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	for prefix, err := range f.err {
		if strings.HasPrefix(url, prefix) {
			return nil, err
		}
	}
	for prefix, p := range f.pages {
		if strings.HasPrefix(url, prefix) {
			return p, nil
		}
	}
	return &Page{}, nil
}

type fakeChat struct {
	replies  []string
	err      error
	requests []interfaces.ChatRequest
}

func (f *fakeChat) Ready() error { return nil }

func (f *fakeChat) Complete(ctx context.Context, req interfaces.ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "[]", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

const sitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.1mg.com/generics/paracetamol-combination-12</loc></url>
  <url><loc>https://www.1mg.com/generics/paracetamol-210991</loc></url>
  <url><loc>https://www.1mg.com/generics/paracetamol-5</loc></url>
</urlset>`

func newSitemapServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Paracetamol":            "paracetamol",
		"Folic Acid":             "folic-acid",
		"  Amoxicillin  ":        "amoxicillin",
		"Cafféine Citrate":       "caffeine-citrate",
		"Ácido Acetilsalicílico": "acido-acetilsalicilico",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindLink(t *testing.T) {
	srv := newSitemapServer(t, sitemapXML)
	s := New(Config{})

	link, err := s.FindLink(context.Background(), "Paracetamol", srv.URL)
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if link != "https://www.1mg.com/generics/paracetamol-210991" {
		t.Errorf("unexpected link %s", link)
	}

	if _, err := s.FindLink(context.Background(), "Ibuprofen", srv.URL); !errors.Is(err, ErrNoLink) {
		t.Errorf("expected ErrNoLink, got %v", err)
	}
}

func TestFindLinkLegacyCharset(t *testing.T) {
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<urlset><url><loc>https://example.com/generics/caf\xe9ine-citrate-7</loc></url><url><loc>https://example.com/generics/cafeine-citrate-8</loc></url></urlset>"
	srv := newSitemapServer(t, body)

	link, err := New(Config{}).FindLink(context.Background(), "Cafeine Citrate", srv.URL)
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if link != "https://example.com/generics/cafeine-citrate-8" {
		t.Errorf("unexpected link %s", link)
	}
}

func TestFindLinkSitemapError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := New(Config{}).FindLink(context.Background(), "Paracetamol", srv.URL); !errors.Is(err, ErrNoLink) {
		t.Errorf("expected ErrNoLink for missing sitemap, got %v", err)
	}
}

func TestMedicineInfo(t *testing.T) {
	srv := newSitemapServer(t, sitemapXML)
	pages := &fakePages{pages: map[string]*Page{
		"https://www.1mg.com/generics/paracetamol-210991": {Markdown: "# Paracetamol\nUsed for fever."},
	}}
	chat := &fakeChat{replies: []string{"```json\n" + `{
		"medicine_name": "Paracetamol",
		"uses": ["Fever", "Pain relief"],
		"how_it_works": "Blocks prostaglandins.",
		"common_side_effects": ["Nausea"],
		"content_details": {"Dr. A": "https://img/a.png"},
		"expert_advice": ["Do not exceed 4g a day"],
		"faqs": [{"question": "Is it safe?", "answer": "Yes"}]
	}` + "\n```"}}
	s := New(Config{Pages: pages, Client: chat, InfoModel: "llama3-70b-8192", SitemapURL: srv.URL})

	info, err := s.MedicineInfo(context.Background(), "Paracetamol", "")
	if err != nil {
		t.Fatalf("MedicineInfo: %v", err)
	}
	if info.MedicineName != "Paracetamol" || len(info.Uses) != 2 || info.FAQs[0].Answer != "Yes" {
		t.Errorf("unexpected info %+v", info)
	}
	if !strings.Contains(chat.requests[0].Prompt, "Used for fever.") {
		t.Error("prompt should carry the scraped markdown")
	}
	if chat.requests[0].Model != "llama3-70b-8192" {
		t.Errorf("unexpected model %s", chat.requests[0].Model)
	}
}

func TestMedicineInfoNoLink(t *testing.T) {
	srv := newSitemapServer(t, sitemapXML)
	pages := &fakePages{}
	s := New(Config{Pages: pages, Client: &fakeChat{}})

	_, err := s.MedicineInfo(context.Background(), "Unobtainium", srv.URL)
	if !errors.Is(err, ErrNoLink) {
		t.Fatalf("expected ErrNoLink, got %v", err)
	}
	if len(pages.urls) != 0 {
		t.Error("nothing should be scraped without a link")
	}
}

func TestMedicineInfoLLMFailureGivesDefaults(t *testing.T) {
	srv := newSitemapServer(t, sitemapXML)
	s := New(Config{Pages: &fakePages{}, Client: &fakeChat{err: errors.New("down")}})

	info, err := s.MedicineInfo(context.Background(), "Paracetamol", srv.URL)
	if err != nil {
		t.Fatalf("MedicineInfo: %v", err)
	}
	if info.Uses[0] != "Information unavailable" {
		t.Errorf("expected default info, got %+v", info)
	}
}

func TestParseInfo(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		info := ParseInfo("Sorry, I cannot help.", "Dolo")
		if info.MedicineName != "Dolo" || info.ContentDetails["note"] == "" {
			t.Errorf("expected default info, got %+v", info)
		}
	})

	t.Run("partial", func(t *testing.T) {
		info := ParseInfo(`{"uses": ["Fever", 3], "how_it_works": "Works.", "content_details": {"views": 12}, "faqs": [{"question": "Q"}, "bad"]}`, "Dolo")
		if info.MedicineName != "Dolo" {
			t.Errorf("missing name should fall back to request, got %q", info.MedicineName)
		}
		if len(info.Uses) != 2 || info.Uses[1] != "3" {
			t.Errorf("unexpected uses %v", info.Uses)
		}
		if info.HowItWorks != "Works." {
			t.Errorf("unexpected how_it_works %q", info.HowItWorks)
		}
		if info.ContentDetails["views"] != "12" {
			t.Errorf("unexpected content details %v", info.ContentDetails)
		}
		if len(info.CommonSideEffects) != 0 || info.CommonSideEffects == nil {
			t.Errorf("missing list should be empty, got %v", info.CommonSideEffects)
		}
		if len(info.FAQs) != 1 || info.FAQs[0].Question != "Q" {
			t.Errorf("unexpected faqs %v", info.FAQs)
		}
	})

	t.Run("array reply", func(t *testing.T) {
		info := ParseInfo(`[1, 2]`, "Dolo")
		if info.Uses[0] != "Information unavailable" {
			t.Errorf("expected default info, got %+v", info)
		}
	})
}

func TestFilterContent(t *testing.T) {
	content := strings.Join([]string{
		"# Search results",
		"Dolo 650 Tablet",
		"strip of 15 tablets",
		"MRP ₹33.70",
		"Crocin Advance 500mg",
		"Price: Rs. 20",
		"Footer links",
		"Sold at 99/-",
	}, "\n")

	got := FilterContent(content)
	for _, want := range []string{"Dolo 650 Tablet", "MRP ₹33.70", "Crocin Advance 500mg", "Price: Rs. 20", "Sold at 99/-"} {
		if !strings.Contains(got, want) {
			t.Errorf("filtered content should keep %q: %s", want, got)
		}
	}
	for _, unwanted := range []string{"# Search results", "Footer links"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("filtered content should drop %q", unwanted)
		}
	}
}

func TestFilterContentLooseMatchAndLimits(t *testing.T) {
	got := FilterContent("Our products\nabout us\nBest medicine deals\ncontact")
	if got != "Our products\nBest medicine deals" {
		t.Errorf("unexpected loose match result %q", got)
	}

	var many []string
	for i := 0; i < 300; i++ {
		many = append(many, "Paracetamol 500 mg tablet pack")
	}
	long := FilterContent(strings.Join(many, "\n"))
	if len(long) > maxFilteredChars {
		t.Errorf("expected at most %d chars, got %d", maxFilteredChars, len(long))
	}
	if n := strings.Count(long, "\n") + 1; n > maxFilteredLines {
		t.Errorf("expected at most %d lines, got %d", maxFilteredLines, n)
	}
}

func TestParseListings(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  int
		ok    bool
	}{
		{"array", `[{"medicine_name": "Dolo 650", "price": 33.7, "dosage": "650mg", "quantity": "15 tablets"}]`, 1, true},
		{"fenced", "```json\n[{\"medicine_name\": \"A\"}, {\"medicine_name\": \"B\"}]\n```", 2, true},
		{"bare objects", "{\"medicine_name\": \"A\"}\n{\"medicine_name\": \"B\"}", 2, true},
		{"embedded", `Here you go: [{"medicine_name": "A"}] hope it helps`, 1, true},
		{"wrapped", `{"medicines": [{"medicine_name": "A"}]}`, 1, true},
		{"single object", `{"medicine_name": "A", "price": "10"}`, 1, true},
		{"empty", `[]`, 0, true},
		{"prose", `No medicines were found on this page.`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseListings(tt.reply)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d listings, got %d", tt.want, len(got))
			}
		})
	}

	got, _ := ParseListings(`[{"medicine_name": "Dolo 650", "price": 33.7}]`)
	if got[0].Price != "33.7" {
		t.Errorf("numeric price should be rendered as text, got %q", got[0].Price)
	}
}

func TestComparePrices(t *testing.T) {
	long := strings.Repeat("Dolo 650 Tablet MRP ₹33.70\n", 30)
	pages := &fakePages{pages: map[string]*Page{
		"https://www.1mg.com/":  {Markdown: long, HTML: "<html>ignored</html>"},
		"https://pharmeasy.in/": {Markdown: "short", HTML: "<div>Crocin 500 mg Tablet ₹20</div>"},
	}}
	chat := &fakeChat{replies: []string{
		`[{"medicine_name": "Dolo 650", "price": 33.7, "dosage": "650mg", "quantity": "15 tablets"}]`,
		`not json at all`,
	}}
	s := New(Config{Pages: pages, Client: chat, PriceModel: "llama3-8b-8192"})

	got := s.ComparePrices(context.Background(), "Dolo 650")

	if len(pages.urls) != 2 || !strings.HasPrefix(pages.urls[0], "https://www.1mg.com/search/all?name=Dolo+650") {
		t.Fatalf("unexpected scrape order %v", pages.urls)
	}
	if !strings.Contains(pages.urls[1], "categoryId=1") {
		t.Errorf("pharmeasy URL should filter medicines: %s", pages.urls[1])
	}
	if len(got["1mg"].Medicines) != 1 || got["1mg"].Medicines[0].Price != "33.7" {
		t.Errorf("unexpected 1mg result %+v", got["1mg"])
	}
	if got["pharmeasy"].RawResponse != "not json at all" || len(got["pharmeasy"].Medicines) != 0 {
		t.Errorf("unexpected pharmeasy result %+v", got["pharmeasy"])
	}
	if !strings.Contains(chat.requests[1].Prompt, "Crocin 500 mg") {
		t.Error("short markdown should fall back to HTML content")
	}
	if chat.requests[0].MaxTokens != 512 || chat.requests[0].System == "" {
		t.Errorf("unexpected request settings %+v", chat.requests[0])
	}

	// Memoized
	s.ComparePrices(context.Background(), " dolo 650 ")
	if len(pages.urls) != 2 {
		t.Errorf("expected memoized result, got %d scrapes", len(pages.urls))
	}
}

func TestComparePricesPharmacyError(t *testing.T) {
	pages := &fakePages{err: map[string]error{"https://www.1mg.com/": errors.New("timeout")}}
	s := New(Config{Pages: pages, Client: &fakeChat{}})

	got := s.ComparePrices(context.Background(), "Dolo")

	if !strings.Contains(got["1mg"].Error, "timeout") {
		t.Errorf("expected 1mg error entry, got %+v", got["1mg"])
	}
	if got["pharmeasy"].Error != "" || got["pharmeasy"].SourceURL == "" {
		t.Errorf("pharmeasy should still be searched, got %+v", got["pharmeasy"])
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"1mg":{"error":"Failed to retrieve data: `) {
		t.Errorf("unexpected encoding %s", raw)
	}
	if !strings.Contains(string(raw), `"pharmeasy":{"medicines":[]`) {
		t.Errorf("unexpected encoding %s", raw)
	}

	// Failed comparisons are not memoized
	s.ComparePrices(context.Background(), "Dolo")
	if len(pages.urls) != 4 {
		t.Errorf("expected a fresh attempt, got %d scrapes", len(pages.urls))
	}
}

func TestFirecrawlScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scrape" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer fc-key" {
			t.Errorf("missing bearer token")
		}
		var req scrapeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.URL != "https://example.com" || len(req.Formats) != 2 {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success": true, "data": {"markdown": "# Hi", "html": "<h1>Hi</h1>"}}`)
	}))
	defer srv.Close()

	page, err := NewFirecrawl(srv.URL, "fc-key", 0).Scrape(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if page.Markdown != "# Hi" || page.HTML != "<h1>Hi</h1>" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestFirecrawlErrors(t *testing.T) {
	if _, err := NewFirecrawl("http://unused", "", 0).Scrape(context.Background(), "https://example.com"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"success": false, "error": "Insufficient credits"}`)
	}))
	defer srv.Close()

	_, err := NewFirecrawl(srv.URL, "fc-key", 0).Scrape(context.Background(), "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "Insufficient credits") {
		t.Errorf("expected upstream error message, got %v", err)
	}
}
