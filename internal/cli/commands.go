// Package cli implements the interactive admin console for WrecksShop.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/delivery"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/shop"
)

// Executor runs a command on a game server. Implemented by rcon.Manager.
type Executor interface {
	Execute(addr, password, command string) (string, error)
}

// CLI provides the interactive admin console.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	ledger   *db.LedgerStore
	queue    *db.DeliveryStore
	catalog  shop.ItemProvider
	sweeper  *delivery.Sweeper
	executor Executor
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, ledger *db.LedgerStore, queue *db.DeliveryStore, catalog shop.ItemProvider, sweeper *delivery.Sweeper, executor Executor) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		ledger:   ledger,
		queue:    queue,
		catalog:  catalog,
		sweeper:  sweeper,
		executor: executor,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nWrecksShop console ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("wrecksshop> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				log.Warn().Err(err).Msg("CLI input error")
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "balance", "bal":
		return c.cmdBalance(args)
	case "credit":
		return c.cmdCredit(args)
	case "history":
		return c.cmdHistory(args)
	case "leaderboard", "top":
		return c.cmdLeaderboard(args)
	case "pending":
		return c.cmdPending()
	case "redeliver":
		c.cmdRedeliver()
	case "items":
		c.cmdItems()
	case "servers":
		c.cmdServers()
	case "test":
		return c.cmdTest(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down WrecksShop...")
		c.eventBus.Publish(events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                   WrecksShop Console Commands                ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  balance <player>        Show a player's point balance       ║")
	fmt.Println("║  credit <player> <pts>   Credit points to a player           ║")
	fmt.Println("║  history <player>        Show recent transactions            ║")
	fmt.Println("║  leaderboard [n]         Show top balances                   ║")
	fmt.Println("║  pending                 List queued deliveries              ║")
	fmt.Println("║  redeliver               Retry all queued deliveries now     ║")
	fmt.Println("║  items                   List shop catalog                   ║")
	fmt.Println("║  servers                 List configured RCON servers        ║")
	fmt.Println("║  test <server>           Test RCON connectivity              ║")
	fmt.Println("║  quit                    Shutdown WrecksShop                 ║")
	fmt.Println("║  help                    Show this help message              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func (c *CLI) cmdBalance(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: balance <player_id>")
	}

	balance, err := c.ledger.GetBalance(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d points\n", args[0], balance)
	return nil
}

func (c *CLI) cmdCredit(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: credit <player_id> <points>")
	}

	points, err := strconv.Atoi(args[1])
	if err != nil || points <= 0 {
		return fmt.Errorf("invalid point amount: %s", args[1])
	}

	if err := c.ledger.Credit(args[0], points, db.StatusSuccess, "admin:console"); err != nil {
		return err
	}

	balance, _ := c.ledger.GetBalance(args[0])
	fmt.Printf("Credited %d points to %s (balance now %d)\n", points, args[0], balance)
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: history <player_id>")
	}

	history, err := c.ledger.History(args[0], 25)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No transactions.")
		return nil
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Points", "Status", "Source", "Timestamp"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, t := range history {
		tw.Append([]string{
			fmt.Sprintf("%d", t.ID),
			fmt.Sprintf("%+d", t.Points),
			t.Status,
			t.Source,
			t.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdLeaderboard(args []string) error {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := c.ledger.Leaderboard(limit)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Rank", "Player", "Balance"})
	tw.SetBorder(true)

	for i, e := range entries {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.PlayerID,
			fmt.Sprintf("%d", e.Balance),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdPending() error {
	pending, err := c.queue.ListPending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending deliveries.")
		return nil
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Player", "Item", "Map", "Price", "Queued At"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, d := range pending {
		tw.Append([]string{
			fmt.Sprintf("%d", d.ID),
			d.PlayerID,
			d.ItemName,
			d.Map,
			fmt.Sprintf("%d", d.Price),
			d.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdRedeliver() {
	fmt.Println("Retrying queued deliveries...")
	delivered := c.sweeper.RedeliverAll()
	fmt.Printf("Delivered %d queued purchase(s)\n", delivered)
}

func (c *CLI) cmdItems() {
	items := c.catalog.Items()
	if len(items) == 0 {
		fmt.Println("Catalog is empty.")
		return
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Name", "Category", "Price", "Map", "Enabled"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, item := range items {
		mapName := item.Map
		if mapName == "" {
			mapName = "any"
		}
		tw.Append([]string{
			item.Name,
			item.Category,
			fmt.Sprintf("%d", item.Price),
			mapName,
			fmt.Sprintf("%v", item.Enabled),
		})
	}
	tw.Render()
}

func (c *CLI) cmdServers() {
	servers := c.cfg.GetShopData().Servers
	if len(servers) == 0 {
		fmt.Println("No servers configured.")
		return
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Name", "Address", "Map"})
	tw.SetBorder(true)

	for _, s := range servers {
		tw.Append([]string{s.Name, s.Addr(), s.Map})
	}
	tw.Render()
}

func (c *CLI) cmdTest(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: test <server_name>")
	}

	server, ok := c.cfg.FindServer(args[0])
	if !ok {
		return fmt.Errorf("server not found: %s", args[0])
	}

	fmt.Printf("Testing RCON connection to %s (%s)...\n", server.Name, server.Addr())
	response, err := c.executor.Execute(server.Addr(), server.Password, "listplayers")
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	fmt.Println("Connection OK. Server response:")
	fmt.Println(response)
	return nil
}
