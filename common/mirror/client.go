package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/abevier/tsk/ratelimiter"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

var _ models.MirrorReader = &Client{}

const userAgent = "signal-ingest/1.0"

var topicIdRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidTopicId accepts ledger entity ids of the form shard.realm.num, e.g. 0.0.12345.
func ValidTopicId(topicId string) bool {
	return topicIdRe.MatchString(topicId)
}

// StatusError is returned for non-2xx mirror responses other than 404.
type StatusError struct {
	Url        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mirror: %s returned %d: %s", e.Url, e.StatusCode, e.Body)
}

type messagesPage struct {
	Messages []*models.RawMessage `json:"messages"`
	Links    struct {
		Next *string `json:"next"`
	} `json:"links"`
	notFound bool
}

type Opts struct {
	BaseUrl       string
	PageSize      int
	RateLimit     int
	MaxQueueDepth int
	HttpClient    *http.Client
}

// Client reads topic messages from a mirror node REST API in ascending consensus order.
type Client struct {
	baseUrl       *url.URL
	pageSize      int
	httpClient    *http.Client
	limiter       *ratelimiter.RateLimiter[string, *messagesPage]
	logger        models.Logger
	metricService models.MetricService
}

func NewClient(opts Opts, logger models.Logger, metricService models.MetricService) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("mirror: invalid base url %s: %w", opts.BaseUrl, err)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPageSize
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = models.DefaultMirrorRateLimit
	}
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = models.DefaultMirrorQueueDepth
	}
	if opts.HttpClient == nil {
		opts.HttpClient = &http.Client{Timeout: common.DefaultRpcWaitTime}
	}
	client := &Client{
		baseUrl:       baseUrl,
		pageSize:      opts.PageSize,
		httpClient:    opts.HttpClient,
		logger:        logger,
		metricService: metricService,
	}
	client.limiter = ratelimiter.New(ratelimiter.Opts{
		Limit:             ratelimiter.Limit(opts.RateLimit),
		Burst:             opts.RateLimit,
		MaxQueueDepth:     opts.MaxQueueDepth,
		FullQueueStrategy: ratelimiter.BlockWhenFull,
	}, client.fetchPage)
	return client, nil
}

// FetchMessages returns every message on the topic strictly after since (all messages when since is
// empty), following pagination links. A missing topic yields an empty result.
func (c *Client) FetchMessages(ctx context.Context, topicId, since string) ([]*models.RawMessage, error) {
	next := c.initialUrl(topicId, since)
	messages := make([]*models.RawMessage, 0)
	for len(next) > 0 {
		page, err := c.limiter.Submit(ctx, next)
		if err != nil {
			c.metricService.Count(ctx, models.MetricName_MirrorFetchError, 1)
			return nil, fmt.Errorf("mirror: fetch %s since %q: %w", topicId, since, err)
		}
		c.metricService.Count(ctx, models.MetricName_MirrorPageFetched, 1)
		if page.notFound {
			c.logger.Debugf("mirror: topic %s not found, treating as empty", topicId)
			break
		}
		for _, message := range page.Messages {
			if len(message.TopicId) == 0 {
				message.TopicId = topicId
			}
		}
		messages = append(messages, page.Messages...)
		if len(page.Messages) == 0 || page.Links.Next == nil || len(*page.Links.Next) == 0 {
			break
		}
		if next, err = c.resolve(*page.Links.Next); err != nil {
			return nil, err
		}
	}
	c.logger.Debugf("mirror: fetched %d messages for %s since %q", len(messages), topicId, since)
	return messages, nil
}

func (c *Client) initialUrl(topicId, since string) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("order", "asc")
	if len(since) > 0 {
		params.Set("timestamp", "gt:"+since)
	}
	return fmt.Sprintf("%s/topics/%s/messages?%s", strings.TrimRight(c.baseUrl.String(), "/"), url.PathEscape(topicId), params.Encode())
}

// resolve turns a pagination link, which the mirror returns as an absolute path, into a full URL.
func (c *Client) resolve(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("mirror: invalid next link %s: %w", link, err)
	}
	return c.baseUrl.ResolveReference(ref).String(), nil
}

func (c *Client) fetchPage(ctx context.Context, pageUrl string) (*messagesPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &messagesPage{notFound: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{pageUrl, resp.StatusCode, string(body)}
	}
	page := new(messagesPage)
	if err = json.NewDecoder(resp.Body).Decode(page); err != nil {
		return nil, fmt.Errorf("mirror: decode %s: %w", pageUrl, err)
	}
	return page, nil
}
