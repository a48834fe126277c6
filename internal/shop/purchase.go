package shop

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/rcon"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

// Outcome classifies what the buyer is told about a purchase. There is no
// ambiguous state: every purchase ends delivered, queued, or rejected.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	OutcomeRejected  Outcome = "rejected"
)

// Rejection reasons surfaced to callers.
const (
	ReasonItemNotFound      = "item not found"
	ReasonItemDisabled      = "item disabled"
	ReasonNoServer          = "no server for map"
	ReasonNotLinked         = "no linked in-game identity"
	ReasonInsufficientFunds = "insufficient points"
	ReasonDeliveryAborted   = "delivery aborted"
)

// Result is the outcome of one purchase attempt.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
	Price      int     `json:"price"`
	Balance    int64   `json:"balance"`
	DeliveryID int64   `json:"delivery_id,omitempty"`
}

// CommandExecutor runs a command on a game server, retrying transient
// failures internally. Implemented by rcon.Manager.
type CommandExecutor interface {
	Execute(addr, password, command string) (string, error)
}

// IdentityResolver maps a Discord account to the in-game id used in
// delivery commands. Implemented by db.PlayerStore.
type IdentityResolver interface {
	Resolve(discordID string) (string, error)
}

// ServerProvider selects the game server hosting a given map.
type ServerProvider interface {
	ServerForMap(mapName string) (config.ServerEntry, bool)
}

// Request is one purchase attempt by a player.
type Request struct {
	PlayerID string
	ItemName string
	Map      string
	Quantity int
	Roles    []string
}

// Service orchestrates purchases: validate, debit, deliver. A failed
// delivery keeps the debit and queues the item for the redelivery sweep;
// points come back only when delivery is aborted outright.
//
// The ledger is keyed by the in-game identity, the same key the webhook
// top-ups and playtime rewards credit, so a purchase spends from the one
// balance those feed.
type Service struct {
	catalog  ItemProvider
	servers  ServerProvider
	identity IdentityResolver
	ledger   *db.LedgerStore
	queue    *db.DeliveryStore
	executor CommandExecutor
	discount DiscountFunc
	bus      *events.EventBus
	logger   zerolog.Logger
}

// NewService wires the purchase orchestrator. A nil discount charges
// catalog prices; a nil bus disables event publication.
func NewService(
	catalog ItemProvider,
	servers ServerProvider,
	identity IdentityResolver,
	ledger *db.LedgerStore,
	queue *db.DeliveryStore,
	executor CommandExecutor,
	discount DiscountFunc,
	bus *events.EventBus,
) *Service {
	if discount == nil {
		discount = NoDiscount
	}
	return &Service{
		catalog:  catalog,
		servers:  servers,
		identity: identity,
		ledger:   ledger,
		queue:    queue,
		executor: executor,
		discount: discount,
		bus:      bus,
		logger:   util.ComponentLogger("shop"),
	}
}

// Purchase runs one purchase end to end. Business rejections happen
// before any ledger mutation; once the debit commits, the purchase is
// valid and only an aborted delivery refunds it.
func (s *Service) Purchase(req Request) Result {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	item, ok := s.catalog.Find(req.ItemName)
	if !ok {
		return s.reject(req, "", 0, ReasonItemNotFound)
	}
	if !item.Enabled {
		return s.reject(req, "", 0, ReasonItemDisabled)
	}
	if item.Map != "" && req.Map != item.Map {
		return s.reject(req, "", 0, fmt.Sprintf("%s is only available on %s", item.Name, item.Map))
	}

	server, ok := s.servers.ServerForMap(req.Map)
	if !ok {
		return s.reject(req, "", 0, ReasonNoServer)
	}

	eosID, err := s.identity.Resolve(req.PlayerID)
	if err != nil {
		return s.reject(req, "", 0, ReasonNotLinked)
	}

	price := s.discount(item, req.Roles, item.Price)

	var balance int64
	if price > 0 {
		source := fmt.Sprintf("buy:%s:%s", item.Name, req.Map)
		balance, err = s.ledger.Debit(eosID, price, source)
		if err != nil {
			if errors.Is(err, db.ErrInsufficientFunds) {
				return s.reject(req, eosID, price, ReasonInsufficientFunds)
			}
			s.logger.Error().Err(err).Str("player", req.PlayerID).Msg("ledger debit failed")
			return s.reject(req, eosID, price, "internal error")
		}
	} else {
		balance, _ = s.ledger.GetBalance(eosID)
	}

	// Debit committed. From here every path ends delivered, queued, or
	// refunded.
	command, err := ResolveCommand(item.CommandTemplate, req.PlayerID, eosID, req.Map, req.Quantity)
	if err != nil {
		s.logger.Error().Err(err).Str("item", item.Name).Msg("command template unresolvable, aborting delivery")
		return s.refund(req, item, eosID, price)
	}

	if _, err := s.executor.Execute(server.Addr(), server.Password, command); err != nil {
		if errors.Is(err, rcon.ErrAuth) {
			s.publish(events.EventRCONAuthFailure, events.RCONFailurePayload{
				Server: server.Name,
				Addr:   server.Addr(),
				Err:    err.Error(),
			})
		}
		return s.queueDelivery(req, item, eosID, command, price, balance)
	}

	// Best-effort in-game confirmation, failure does not affect the purchase.
	notice := fmt.Sprintf("ServerChat %s delivered! Thanks for your purchase.", item.Name)
	if _, err := s.executor.Execute(server.Addr(), server.Password, notice); err != nil {
		s.logger.Debug().Err(err).Str("server", server.Name).Msg("chat notice failed")
	}

	s.logger.Info().
		Str("player", req.PlayerID).
		Str("item", item.Name).
		Str("map", req.Map).
		Int("price", price).
		Msg("purchase delivered")
	s.publish(events.EventPurchaseDelivered, events.PurchasePayload{
		PlayerID: req.PlayerID,
		ItemName: item.Name,
		MapName:  req.Map,
		Server:   server.Name,
		Price:    price,
		Balance:  balance,
	})

	return Result{Outcome: OutcomeDelivered, Price: price, Balance: balance}
}

// queueDelivery records the purchase for the redelivery sweep. The debit
// stands; the buyer is told the item is on its way.
func (s *Service) queueDelivery(req Request, item ShopItem, eosID, command string, price int, balance int64) Result {
	id, err := s.queue.Queue(eosID, item.Name, command, req.Map, price)
	if err != nil {
		s.logger.Error().Err(err).Str("player", req.PlayerID).Msg("failed to queue delivery, refunding")
		return s.refund(req, item, eosID, price)
	}

	s.logger.Warn().
		Str("player", req.PlayerID).
		Str("item", item.Name).
		Int64("delivery_id", id).
		Msg("delivery failed, queued for retry")
	s.publish(events.EventPurchaseQueued, events.PurchasePayload{
		PlayerID: req.PlayerID,
		ItemName: item.Name,
		MapName:  req.Map,
		Price:    price,
		Balance:  balance,
	})

	return Result{Outcome: OutcomeQueued, Price: price, Balance: balance, DeliveryID: id}
}

// refund compensates an irrecoverable post-debit abort.
func (s *Service) refund(req Request, item ShopItem, eosID string, price int) Result {
	if price > 0 {
		reason := fmt.Sprintf("%s refund - delivery aborted", item.Name)
		if err := s.ledger.Refund(eosID, price, reason); err != nil {
			s.logger.Error().Err(err).Str("player", req.PlayerID).Int("price", price).Msg("refund failed")
		}
	}

	balance, _ := s.ledger.GetBalance(eosID)
	s.publish(events.EventPurchaseRefunded, events.PurchasePayload{
		PlayerID: req.PlayerID,
		ItemName: item.Name,
		MapName:  req.Map,
		Price:    price,
		Balance:  balance,
		Reason:   ReasonDeliveryAborted,
	})

	return Result{Outcome: OutcomeRejected, Reason: ReasonDeliveryAborted, Price: price, Balance: balance}
}

func (s *Service) reject(req Request, eosID string, price int, reason string) Result {
	var balance int64
	if eosID != "" {
		balance, _ = s.ledger.GetBalance(eosID)
	}
	s.logger.Debug().
		Str("player", req.PlayerID).
		Str("item", req.ItemName).
		Str("reason", reason).
		Msg("purchase rejected")
	s.publish(events.EventPurchaseRejected, events.PurchasePayload{
		PlayerID: req.PlayerID,
		ItemName: req.ItemName,
		MapName:  req.Map,
		Price:    price,
		Balance:  balance,
		Reason:   reason,
	})

	return Result{Outcome: OutcomeRejected, Reason: reason, Price: price, Balance: balance}
}

func (s *Service) publish(t events.EventType, payload interface{}) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: t, Source: "shop", Payload: payload})
	}
}
