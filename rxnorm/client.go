// Package rxnorm queries the NLM RxNav REST API for generic drug concepts.
package rxnorm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/go-resty/resty/v2"
)

// DefaultPriceComparison is reported for every RxNorm generic
const DefaultPriceComparison = "Generally 80-85% cheaper than brand name"

// Generic term types: clinical drug, clinical dose form, clinical dose form group
var genericTTYs = map[string]bool{"SCD": true, "SCDF": true, "SCDG": true}

// StatusError is a non-2xx answer from RxNav
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rxnav %s: status %d", e.Path, e.StatusCode)
}

// Config tunes the client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Attempts    uint
	RetryDelay  time.Duration
	MaxConcepts int // Properties are fetched for at most this many concepts
}

// Client talks to RxNav
type Client struct {
	http        *resty.Client
	attempts    uint
	retryDelay  time.Duration
	maxConcepts int
}

var _ interfaces.DrugLookup = (*Client)(nil)

// New returns a client for cfg.BaseURL (for example https://rxnav.nlm.nih.gov/REST)
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.MaxConcepts <= 0 {
		cfg.MaxConcepts = 20
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		attempts:    cfg.Attempts,
		retryDelay:  cfg.RetryDelay,
		maxConcepts: cfg.MaxConcepts,
	}
}

type rxcuiResponse struct {
	IDGroup struct {
		RxnormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

type allRelatedResponse struct {
	AllRelatedGroup struct {
		ConceptGroup []struct {
			TTY               string `json:"tty"`
			ConceptProperties []struct {
				RxCUI string `json:"rxcui"`
				Name  string `json:"name"`
			} `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"allRelatedGroup"`
}

type propertiesResponse struct {
	PropConceptGroup struct {
		PropConcept []struct {
			PropName  string `json:"propName"`
			PropValue string `json:"propValue"`
		} `json:"propConcept"`
	} `json:"propConceptGroup"`
}

// FindRxCUI returns the first RxNorm identifier for name, or "" if none
func (c *Client) FindRxCUI(ctx context.Context, name string) (string, error) {
	var out rxcuiResponse
	err := c.get(ctx, "/rxcui.json", map[string]string{"name": name, "search": "1"}, nil, &out)
	if err != nil {
		return "", err
	}
	if len(out.IDGroup.RxnormID) == 0 {
		return "", nil
	}
	return out.IDGroup.RxnormID[0], nil
}

// RelatedGenerics returns the generic concepts related to rxcui
func (c *Client) RelatedGenerics(ctx context.Context, rxcui string) ([]entities.DrugConcept, error) {
	var out allRelatedResponse
	err := c.get(ctx, "/rxcui/{rxcui}/allrelated.json", nil, map[string]string{"rxcui": rxcui}, &out)
	if err != nil {
		return nil, err
	}

	var concepts []entities.DrugConcept
	for _, group := range out.AllRelatedGroup.ConceptGroup {
		if !genericTTYs[group.TTY] {
			continue
		}
		for _, p := range group.ConceptProperties {
			if p.Name == "" || p.RxCUI == "" {
				continue
			}
			concepts = append(concepts, entities.DrugConcept{GenericName: p.Name, RxCUI: p.RxCUI})
		}
	}
	return concepts, nil
}

// Properties returns strength and dose form of rxcui
func (c *Client) Properties(ctx context.Context, rxcui string) (entities.DrugDetails, error) {
	details := entities.DrugDetails{PriceComparison: DefaultPriceComparison}

	var out propertiesResponse
	err := c.get(ctx, "/rxcui/{rxcui}/allProperties.json", map[string]string{"prop": "all"}, map[string]string{"rxcui": rxcui}, &out)
	if err != nil {
		return details, err
	}

	for _, p := range out.PropConceptGroup.PropConcept {
		switch p.PropName {
		case "STRENGTH":
			details.Dosage = entities.StringPtr(p.PropValue)
		case "DOSE_FORM":
			details.Form = entities.StringPtr(p.PropValue)
		}
	}
	return details, nil
}

// LookupGenerics resolves name to its generic concepts with their
// properties. An unknown name gives an empty list and no error. A failed
// properties call leaves that concept's details empty.
func (c *Client) LookupGenerics(ctx context.Context, name string) ([]entities.DrugConcept, error) {
	rxcui, err := c.FindRxCUI(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find rxcui for %q: %w", name, err)
	}
	if rxcui == "" {
		logging.Debug("No RxNorm concept for medicine", "medicine", name)
		return []entities.DrugConcept{}, nil
	}

	concepts, err := c.RelatedGenerics(ctx, rxcui)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related concepts for rxcui %s: %w", rxcui, err)
	}
	if len(concepts) > c.maxConcepts {
		logging.Debug("Truncating RxNorm concepts", "medicine", name, "found", len(concepts), "kept", c.maxConcepts)
		concepts = concepts[:c.maxConcepts]
	}

	for i := range concepts {
		details, err := c.Properties(ctx, concepts[i].RxCUI)
		if err != nil {
			logging.Warn("Failed to fetch RxNorm properties", "rxcui", concepts[i].RxCUI, "error", err)
			details = entities.DrugDetails{}
		}
		concepts[i].Details = details
	}

	if concepts == nil {
		concepts = []entities.DrugConcept{}
	}
	return concepts, nil
}

// get performs a GET with retries on transient failures
func (c *Client) get(ctx context.Context, path string, query, pathParams map[string]string, out any) error {
	start := time.Now()
	err := retry.Do(
		func() error {
			req := c.http.R().SetContext(ctx).SetResult(out)
			if query != nil {
				req.SetQueryParams(query)
			}
			if pathParams != nil {
				req.SetPathParams(pathParams)
			}

			resp, err := req.Get(path)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return err
			}
			if resp.IsError() {
				statusErr := &StatusError{StatusCode: resp.StatusCode(), Path: path}
				if isTransientStatus(resp.StatusCode()) {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.Warn("Retrying RxNav request", "path", path, "attempt", n+1, "error", err)
		}),
	)
	metrics.ObserveExternalCall("rxnorm", time.Since(start).Seconds(), err)
	return err
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsTransient reports whether err is worth retrying later
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isTransientStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
