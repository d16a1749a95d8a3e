// Command cartctl applies quantity changes to a store cart through the cart
// gRPC service, the way a storefront client would: each change is applied
// locally first and undone if the server refuses it.
//
//	cartctl -store store-1 p1:+2 p2:-1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	grpcadapter "github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/grpc"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/cart"
	"golang.org/x/sync/errgroup"
)

type options struct {
	storeID string
	token   string
	grpcURL string
	httpURL string
	breaker grpcadapter.BreakerConfig
	changes []change
	timeout time.Duration
}

type change struct {
	productID string
	delta     int
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("cartctl: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "cartctl")
	if err := run(ctx, opts, http.DefaultClient, logger, os.Stdout); err != nil {
		log.Fatalf("cartctl: %v", err)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("cartctl", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.storeID, "store", "", "store id whose cart is changed")
	fs.StringVar(&opts.token, "token", os.Getenv("RETAIL_TOKEN"), "bearer token")
	fs.StringVar(&opts.grpcURL, "grpc", envOrDefault("CART_GRPC_URL", "localhost:9090"), "cart gRPC target")
	fs.StringVar(&opts.httpURL, "http", envOrDefault("RETAIL_HTTP_URL", "http://localhost:8080"), "ordering HTTP base url")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	var maxFailures uint
	fs.UintVar(&maxFailures, "breaker-failures", 5, "consecutive transport failures before the breaker opens")
	fs.DurationVar(&opts.breaker.Timeout, "breaker-timeout", 10*time.Second, "how long the breaker stays open")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.breaker.ConsecutiveFailures = uint32(maxFailures)
	if opts.storeID == "" {
		return options{}, errors.New("-store is required")
	}
	if opts.token == "" {
		return options{}, errors.New("-token or RETAIL_TOKEN is required")
	}
	changes, err := parseChanges(fs.Args())
	if err != nil {
		return options{}, err
	}
	opts.changes = changes
	return opts, nil
}

// parseChanges reads product:delta pairs such as p1:+2 or p2:-1.
func parseChanges(args []string) ([]change, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one product:delta change is required")
	}
	out := make([]change, 0, len(args))
	for _, arg := range args {
		productID, rawDelta, ok := strings.Cut(arg, ":")
		if !ok || strings.TrimSpace(productID) == "" {
			return nil, fmt.Errorf("bad change %q: want product:delta", arg)
		}
		delta, err := strconv.Atoi(strings.TrimPrefix(rawDelta, "+"))
		if err != nil || delta == 0 {
			return nil, fmt.Errorf("bad change %q: delta must be a non-zero integer", arg)
		}
		out = append(out, change{productID: strings.TrimSpace(productID), delta: delta})
	}
	return out, nil
}

func run(ctx context.Context, opts options, httpClient *http.Client, logger *slog.Logger, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	listing, err := fetchListing(ctx, httpClient, opts.httpURL, opts.storeID, opts.token)
	if err != nil {
		return err
	}
	client, err := grpcadapter.DialCartClient(opts.grpcURL, opts.token, opts.breaker, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	session := cart.NewSession(opts.storeID, client, logger)
	for _, item := range listing {
		session.Track(item.Product.ProductID, item.InCart, item.AvailablePacks)
	}

	// Changes run concurrently; a refused one leaves the others in place.
	failures := make([]error, len(opts.changes))
	var g errgroup.Group
	for i, c := range opts.changes {
		i, c := i, c
		g.Go(func() error {
			if _, err := session.ChangeQuantity(ctx, c.productID, c.delta); err != nil {
				failures[i] = fmt.Errorf("%s %+d: %w", c.productID, c.delta, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"store_id": opts.storeID, "lines": session.Lines()}); err != nil {
		return err
	}
	return errors.Join(failures...)
}

func fetchListing(ctx context.Context, client *http.Client, baseURL, storeID, token string) ([]application.OrderableProduct, error) {
	url := strings.TrimRight(baseURL, "/") + "/v1/stores/" + storeID + "/products"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Products []application.OrderableProduct `json:"products"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch products: %d %s: %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Data.Products, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
