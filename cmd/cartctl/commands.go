package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
)

func dispatch(ctx context.Context, sess *session, args []string) error {
	cmd, rest := args[0], args[1:]
	store := sess.store

	switch cmd {
	case "list":
		return expectArgs(cmd, rest, 0, 0)

	case "add":
		return addLine(ctx, store, rest)

	case "remove":
		if err := expectArgs(cmd, rest, 2, 2); err != nil {
			return err
		}
		store.RemoveLine(ctx, cart.ID(rest[0]), cart.ID(rest[1]))
		return nil

	case "qty":
		if err := expectArgs(cmd, rest, 3, 3); err != nil {
			return err
		}
		qty, err := parseQuantity(rest[2])
		if err != nil {
			return err
		}
		store.SetQuantity(ctx, cart.ID(rest[0]), cart.ID(rest[1]), qty)
		return nil

	case "date":
		if err := expectArgs(cmd, rest, 3, 3); err != nil {
			return err
		}
		if err := checkDate(rest[2]); err != nil {
			return err
		}
		store.SetDeliveryDate(ctx, cart.ID(rest[0]), cart.ID(rest[1]), rest[2])
		return nil

	case "note":
		if len(rest) < 3 {
			return fmt.Errorf("%w: note needs <product> <pack> <text>", errUsage)
		}
		store.SetInstructions(ctx, cart.ID(rest[0]), cart.ID(rest[1]), strings.Join(rest[2:], " "))
		return nil

	case "clear":
		if err := expectArgs(cmd, rest, 0, 0); err != nil {
			return err
		}
		store.Clear(ctx)
		return nil

	case "login":
		if err := expectArgs(cmd, rest, 2, 2); err != nil {
			return err
		}
		user := strings.TrimSpace(rest[0])
		if user == "" {
			return fmt.Errorf("%w: login needs a user id", errUsage)
		}
		if err := sess.tokens.Store(ctx, rest[1]); err != nil {
			return fmt.Errorf("storing credential: %w", err)
		}
		store.TransitionIdentity(ctx, cart.Identity(user))
		return nil

	case "logout":
		if err := expectArgs(cmd, rest, 0, 0); err != nil {
			return err
		}
		store.TransitionIdentity(ctx, cart.Anonymous)
		if err := sess.tokens.Store(ctx, ""); err != nil {
			return fmt.Errorf("clearing credential: %w", err)
		}
		return nil

	case "pull":
		if err := expectArgs(cmd, rest, 0, 0); err != nil {
			return err
		}
		if store.Identity().IsAnonymous() {
			return fmt.Errorf("%w: pull requires a signed-in identity", errUsage)
		}
		records, err := sess.remote.Fetch(ctx, sess.tokens.Token(ctx))
		if err != nil {
			return err
		}
		store.ReplaceFromRemote(ctx, records)
		return nil
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func addLine(ctx context.Context, store *cart.Store, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "product display name")
	doses := fs.Int("doses", 0, "doses per pack")
	price := fs.String("price", "", "pack price")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if err := expectArgs("add", rest, 3, 5); err != nil {
		return err
	}

	qty, err := parseQuantity(rest[2])
	if err != nil {
		return err
	}

	product := cart.Product{ID: cart.ID(rest[0]), Name: *name}
	pack := cart.DosePack{ID: cart.ID(rest[1]), Doses: *doses}
	if *price != "" {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("%w: price %q: %v", errUsage, *price, err)
		}
		pack.Price = decimal.NewNullDecimal(p)
	}

	var date, note string
	if len(rest) > 3 {
		date = rest[3]
		if err := checkDate(date); err != nil {
			return err
		}
	}
	if len(rest) > 4 {
		note = rest[4]
	}

	store.AddLine(ctx, product, pack, qty, date, note)
	return nil
}

func expectArgs(cmd string, args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", errUsage, cmd, lo, hi, len(args))
	}
	return nil
}

func parseQuantity(raw string) (int, error) {
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q is not an integer", errUsage, raw)
	}
	return qty, nil
}

func checkDate(raw string) error {
	if _, err := time.Parse(cart.DateLayout, raw); err != nil {
		return fmt.Errorf("%w: date %q must be %s", errUsage, raw, cart.DateLayout)
	}
	return nil
}

func printCart(out io.Writer, store *cart.Store) {
	identity := string(store.Identity())
	if identity == "" {
		identity = "anonymous"
	}
	fmt.Fprintf(out, "identity: %s\n", identity)

	lines := store.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tPACK\tQTY\tDELIVERY\tPRICE\tNOTE")
	for _, l := range lines {
		price := "-"
		if l.DosePack.Price.Valid {
			price = l.DosePack.Price.Decimal.StringFixed(2)
		}
		product := l.Product.ID.String()
		if l.Product.Name != "" {
			product += " (" + l.Product.Name + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			product, l.DosePack.ID, l.Quantity, l.RequestedDeliveryDate, price, l.SpecialInstructions)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "total quantity: %d\nsubtotal: %s\n", store.TotalQuantity(), store.Subtotal().StringFixed(2))
}
