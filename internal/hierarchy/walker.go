package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"google.golang.org/api/iterator"
)

// RootIndex records the root accounts observed during a run. It is owned by
// the caller and threaded through Walk so nothing outlives the run.
type RootIndex map[ads.CustomerID]AccountInfo

// Walker discovers manager/client relationships breadth-first, one remote
// query per manager account.
type Walker struct {
	gateway         ads.Gateway
	includeChildren bool
}

// NewWalker creates a Walker. With includeChildren false only the direct
// clients of each root are listed; sub-managers are not descended into.
func NewWalker(gateway ads.Gateway, includeChildren bool) *Walker {
	return &Walker{gateway: gateway, includeChildren: includeChildren}
}

// Walk builds a forest with one tree per accessible root account. Roots
// already present in seen are not walked again. The updated index is returned.
//
// Failing to list accessible accounts aborts the walk. A failure while walking
// one root skips that root, unless it is an authorization failure.
func (w *Walker) Walk(ctx context.Context, seen RootIndex) (*Forest, RootIndex, error) {
	log := logger.FromContext(ctx)
	if seen == nil {
		seen = make(RootIndex)
	}

	candidates, err := w.gateway.ListAccessibleCustomers(ctx)
	if err != nil {
		return nil, seen, listingError(err)
	}
	log.Info().Int("accessible", len(candidates)).Msg("Listed accessible customers")

	forest := NewForest()
	for _, rootID := range candidates {
		if _, ok := seen[rootID]; ok {
			log.Debug().Str("root_id", rootID.String()).Msg("Root already walked, skipping")
			continue
		}

		root, children, err := w.walkRoot(ctx, rootID)
		if err != nil {
			var te *ads.TransportError
			if errors.As(err, &te) && te.ClientSide() {
				return nil, seen, ads.ToUserError(err)
			}
			log.Warn().Err(err).Str("root_id", rootID.String()).Msg("Hierarchy walk failed, skipping root")
			continue
		}
		if root == nil {
			log.Debug().Str("root_id", rootID.String()).Msg("Root not returned by its own hierarchy query")
			continue
		}

		seen[rootID] = *root
		forest.add(assemble(*root, children))
	}

	return forest, seen, nil
}

// walkRoot runs the breadth-first search below one root. It returns the root's
// own info (nil when never observed) and the flat parent -> children map.
func (w *Walker) walkRoot(ctx context.Context, rootID ads.CustomerID) (*AccountInfo, map[ads.CustomerID][]AccountInfo, error) {
	log := logger.FromContext(ctx)

	var root *AccountInfo
	children := make(map[ads.CustomerID][]AccountInfo)
	queue := []ads.CustomerID{rootID}
	enqueued := map[ads.CustomerID]bool{rootID: true}

	for len(queue) > 0 {
		queried := queue[0]
		queue = queue[1:]

		infos, err := w.queryClients(ctx, rootID, queried)
		if err != nil {
			return nil, nil, fmt.Errorf("walkRoot: querying clients of %s: %w", queried, err)
		}

		for _, client := range infos {
			if client.info.ID == rootID {
				info := client.info
				root = &info
			}
			if client.info.ID == queried {
				continue
			}
			children[queried] = append(children[queried], client.info)

			if client.info.Manager && client.relativeLevel == 1 && !enqueued[client.info.ID] && w.includeChildren {
				enqueued[client.info.ID] = true
				queue = append(queue, client.info.ID)
			}
		}
		log.Debug().
			Str("root_id", rootID.String()).
			Str("customer_id", queried.String()).
			Int("children", len(children[queried])).
			Msg("Queried manager account")
	}

	return root, children, nil
}

type clientRow struct {
	info          AccountInfo
	relativeLevel int64
}

func (w *Walker) queryClients(ctx context.Context, rootID, queried ads.CustomerID) ([]clientRow, error) {
	it, err := w.gateway.SearchStream(ctx, ads.SearchRequest{
		CustomerID:      queried,
		LoginCustomerID: rootID,
		Query:           ads.HierarchyQuery(),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []clientRow
	for {
		rec, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		cc, ok := rec.Object("customerClient")
		if !ok {
			continue
		}
		id, ok := cc.Int64("id")
		if !ok {
			continue
		}
		level, _ := cc.Int64("level")
		out = append(out, clientRow{
			info: AccountInfo{
				ID:              ads.CustomerID(id),
				ResourceName:    cc.String("resourceName"),
				ClientCustomer:  cc.String("clientCustomer"),
				DescriptiveName: cc.String("descriptiveName"),
				CurrencyCode:    cc.String("currencyCode"),
				TimeZone:        cc.String("timeZone"),
				Manager:         cc.Bool("manager"),
			},
			relativeLevel: level,
		})
	}
	return out, nil
}

// listingError turns a failure to list accessible accounts into the message
// shown to the user.
func listingError(err error) error {
	var pe *ads.PlatformError
	if errors.As(err, &pe) {
		return &ads.UserError{Message: strings.Join(pe.Messages(), "\n"), Code: pe.HTTPStatus}
	}
	var te *ads.TransportError
	if errors.As(err, &te) {
		return ads.ToUserError(te)
	}
	return fmt.Errorf("Walk: listing accessible customers: %w", err)
}
