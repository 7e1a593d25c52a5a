// Path: internal/oai/client_test.go
package oai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-harvester/internal/config"
)

const listRecordsXML = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2020-01-03T00:00:00Z</responseDate>
  <request verb="ListRecords">http://export.arxiv.org/oai2</request>
  <ListRecords>
    <record>
      <header>
        <identifier>oai:arXiv.org:2001.00001</identifier>
        <datestamp>2020-01-02</datestamp>
        <setSpec>cs</setSpec>
        <setSpec>math</setSpec>
        <setSpec>cs</setSpec>
      </header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title>Sample Paper</dc:title>
          <dc:creator>Doe, Jane</dc:creator>
          <dc:creator>Smith, John</dc:creator>
          <dc:subject>Computer Science - Learning</dc:subject>
          <dc:subject>Mathematics - Optimization</dc:subject>
          <dc:description>An abstract with &lt;angle brackets&gt; and 'quotes'.</dc:description>
          <dc:date>2020-01-01</dc:date>
          <dc:identifier>http://arxiv.org/abs/2001.00001</dc:identifier>
          <dc:type>text</dc:type>
          <dc:language>en</dc:language>
          <dc:rights>CC-BY</dc:rights>
        </oai_dc:dc>
      </metadata>
    </record>
    <record>
      <header>
        <identifier></identifier>
        <datestamp>2020-01-02</datestamp>
      </header>
    </record>
    <record>
      <header>
        <identifier>oai:arXiv.org:2001.00002</identifier>
        <datestamp>2020-01-02</datestamp>
        <setSpec>cs</setSpec>
      </header>
    </record>
  </ListRecords>
</OAI-PMH>`

const noRecordsMatchXML = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2020-01-03T00:00:00Z</responseDate>
  <request verb="ListRecords">http://export.arxiv.org/oai2</request>
  <error code="noRecordsMatch">The combination of the values of the from, until, set and metadataPrefix arguments results in an empty list.</error>
</OAI-PMH>`

func newTestClient(t *testing.T, baseURL string, overrides func(*config.ArXivConfig)) *Client {
	t.Helper()
	cfg := config.ArXivConfig{
		BaseURL:        baseURL,
		RateLimitDelay: 0,
		MaxRetries:     3,
		RequestTimeout: 5,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, logger)
}

func TestListRecordsParsesFields(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, listRecordsXML)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	records, err := c.ListRecords(context.Background(), "oai_dc", "cs", "2020-01-02", "2020-01-02")
	require.NoError(t, err)

	assert.Equal(t, "ListRecords", gotQuery.Get("verb"))
	assert.Equal(t, "oai_dc", gotQuery.Get("metadataPrefix"))
	assert.Equal(t, "cs", gotQuery.Get("set"))
	assert.Equal(t, "2020-01-02", gotQuery.Get("from"))
	assert.Equal(t, "2020-01-02", gotQuery.Get("until"))

	// The record with an empty identifier is dropped.
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, "oai:arXiv.org:2001.00001", rec.Identifier)
	assert.Equal(t, "2020-01-02", rec.Datestamp)
	// Wire order and duplicates are preserved.
	assert.Equal(t, []string{"cs", "math", "cs"}, rec.SetSpecs)
	assert.Equal(t, []string{"Doe, Jane", "Smith, John"}, rec.Creators)
	assert.Equal(t, []string{"2020-01-01"}, rec.Dates)
	assert.Equal(t, "An abstract with <angle brackets> and 'quotes'.", rec.Description)
	assert.Equal(t, []string{"http://arxiv.org/abs/2001.00001"}, rec.Identifiers)
	assert.Equal(t, []string{"Computer Science - Learning", "Mathematics - Optimization"}, rec.Subjects)
	assert.Equal(t, []string{"Sample Paper"}, rec.Titles)
	assert.Equal(t, "text", rec.Type)

	// A record with no metadata block still ingests on its header.
	assert.Equal(t, "oai:arXiv.org:2001.00002", records[1].Identifier)
	assert.Empty(t, records[1].Creators)
}

func TestListRecordsOmitsEmptyParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, listRecordsXML)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.ListRecords(context.Background(), "oai_dc", "", "", "")
	require.NoError(t, err)

	assert.False(t, gotQuery.Has("set"))
	assert.False(t, gotQuery.Has("from"))
	assert.False(t, gotQuery.Has("until"))
}

func TestListRecordsRetryBound(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	records, err := c.ListRecords(context.Background(), "oai_dc", "cs", "", "")
	assert.Error(t, err)
	assert.Nil(t, records)
	assert.Equal(t, 3, attempts, "exactly maxRetries attempts, no more")
}

func TestListRecordsRetrySucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, listRecordsXML)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	records, err := c.ListRecords(context.Background(), "oai_dc", "cs", "", "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 3, attempts)
}

func TestListRecordsNoRecordsMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, noRecordsMatchXML)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	records, err := c.ListRecords(context.Background(), "oai_dc", "cs", "2020-01-02", "2020-01-02")
	require.NoError(t, err, "noRecordsMatch is a legitimate empty result")
	assert.Empty(t, records)
}

func TestListRecordsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="badArgument">until is malformed</error>
</OAI-PMH>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.ListRecords(context.Background(), "oai_dc", "cs", "", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badArgument")
}

func TestListRecordsMalformedXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<OAI-PMH><ListRecords><record>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.ListRecords(context.Background(), "oai_dc", "cs", "", "")
	assert.Error(t, err)
}

func TestListRecordsSinglePageByDefault(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record><header><identifier>oai:arXiv.org:1</identifier><datestamp>2020-01-02</datestamp></header></record>
    <resumptionToken>page-2</resumptionToken>
  </ListRecords>
</OAI-PMH>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	records, err := c.ListRecords(context.Background(), "oai_dc", "", "", "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, requests, "resumption token not followed by default")
}

func TestListRecordsFollowsResumptionToken(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.URL.Query().Get("resumptionToken"))
		if len(tokens) == 1 {
			fmt.Fprint(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record><header><identifier>oai:arXiv.org:1</identifier><datestamp>2020-01-02</datestamp></header></record>
    <resumptionToken>page-2</resumptionToken>
  </ListRecords>
</OAI-PMH>`)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record><header><identifier>oai:arXiv.org:2</identifier><datestamp>2020-01-02</datestamp></header></record>
  </ListRecords>
</OAI-PMH>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *config.ArXivConfig) {
		cfg.FollowResumption = true
	})
	records, err := c.ListRecords(context.Background(), "oai_dc", "cs", "", "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "oai:arXiv.org:1", records[0].Identifier)
	assert.Equal(t, "oai:arXiv.org:2", records[1].Identifier)
	require.Len(t, tokens, 2)
	assert.Empty(t, tokens[0])
	assert.Equal(t, "page-2", tokens[1])
}
