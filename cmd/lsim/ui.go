package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"lifesim/internal/advisory"
	cl "lifesim/internal/cli"
	"lifesim/internal/depreciation"
	"lifesim/internal/money"
	"lifesim/internal/store"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderCatalog(items []depreciation.CatalogItem) {
	accent.Println("\n== LIFESTYLE CATALOG ==")
	if len(items) == 0 {
		printInfo("Nothing for sale.")
		return
	}
	fmt.Printf("%-36s %-20s %-12s %14s %12s\n", "ID", "NAME", "CATEGORY", "PRICE", "MONTHLY")
	for _, it := range items {
		fmt.Printf("%-36s %-20s %-12s %14s %12s\n",
			it.ID,
			truncate(it.Name, 20),
			truncate(it.Category, 12),
			formatMoney(it.BasePrice),
			formatMoney(it.MonthlyCost),
		)
	}
	fmt.Println()
}

func renderHoldings(holdings []depreciation.Holding) {
	accent.Println("\n== YOUR LIFESTYLE ==")
	if len(holdings) == 0 {
		printInfo("You don't own any lifestyle items.")
		return
	}
	fmt.Printf("%-36s %-20s %14s %14s %9s %7s\n", "ID", "ITEM", "PAID", "WORTH", "CHANGE", "MONTHS")
	total := decimal.Zero
	for _, h := range holdings {
		value := h.Value()
		total = total.Add(value)
		fmt.Printf("%-36s %-20s %14s %14s %9s %7d\n",
			h.ID,
			truncate(h.ItemName, 20),
			formatMoney(h.PurchasePrice),
			formatMoney(value),
			colorizePercent(changePercent(h.PurchasePrice, value)),
			h.MonthsOwned,
		)
	}
	fmt.Printf("\nTotal value: %s\n\n", formatMoney(total))
}

func renderPurchase(out cl.BuyResult) {
	printSuccess(fmt.Sprintf("Bought %s for %s.", out.Holding.ItemName, formatMoney(out.Holding.PurchasePrice)))
	if out.Holding.MonthlyCost.IsPositive() {
		printWarn(fmt.Sprintf("It costs %s every month you keep it.", formatMoney(out.Holding.MonthlyCost)))
	}
	renderReaction(out.MentorReaction)
}

func renderSale(out cl.SellResult) {
	s := out.Sale
	printSuccess(fmt.Sprintf("Sold %s for %s.", s.ItemName, formatMoney(s.SaleValue)))
	fmt.Printf("Paid:     %s\n", formatMoney(s.PurchasePrice))
	fmt.Printf("Lost:     %s\n", colorizeMoney(s.DepreciationLoss.Neg()))
	fmt.Printf("Balance:  %s\n", formatMoney(s.Balance))
	renderReaction(out.MentorReaction)
}

func renderPreview(p depreciation.Preview) {
	accent.Printf("\n== %s ==\n", p.ItemName)
	fmt.Printf("Paid:            %s\n", formatMoney(p.PurchasePrice))
	fmt.Printf("Worth now:       %s (%s)\n", formatMoney(p.CurrentValue), colorizePercent(-p.DepreciationPercentage))
	fmt.Printf("Next month:      %s (%s)\n", formatMoney(p.NextMonthValue), colorizeMoney(p.NextMonthDepreciation.Neg()))
	fmt.Printf("Floor:           %s\n", formatMoney(p.FloorValue))
	fmt.Printf("Months owned:    %d\n\n", p.MonthsOwned)
}

func renderReaction(msg *advisory.Message) {
	if msg == nil {
		return
	}
	fmt.Println()
	accent.Printf("%s says:\n", mentorName(msg.Mentor))
	fmt.Println("  " + msg.Body)
}

func renderMentors(mentors []advisory.Mentor) {
	accent.Println("\n== MENTORS ==")
	if len(mentors) == 0 {
		printInfo("No mentors yet.")
		return
	}
	for _, m := range mentors {
		fmt.Printf("%-14s %-13s %s\n", truncate(m.Name, 14), m.Persona, m.Personality)
	}
	fmt.Println()
}

func renderMetrics(m advisory.Metrics) {
	accent.Println("\n== FINANCIAL HEALTH ==")
	fmt.Printf("Net worth:          %s\n", colorizeFloat(m.NetWorth))
	fmt.Printf("Cash:               %s (%.0f%% of assets)\n", formatFloat(m.Cash), m.CashRatio*100)
	fmt.Printf("Assets:             %s\n", formatFloat(m.TotalAssets))
	fmt.Printf("Liabilities:        %s\n", formatFloat(m.TotalLiabilities))
	fmt.Printf("Monthly income:     %s\n", formatFloat(m.MonthlyIncome))
	fmt.Printf("Monthly cash flow:  %s\n", colorizeFloat(m.CashFlow))
	fmt.Printf("Debt to income:     %.0f%%\n", m.DebtToIncomeRatio*100)
	fmt.Printf("Savings rate:       %.0f%%\n", m.SavingsRate*100)
	fmt.Printf("Credit score:       %d\n", m.CreditScore)

	if len(m.AssetTypes) > 0 {
		fmt.Println()
		accent.Println("Assets by type")
		types := make([]string, 0, len(m.AssetTypes))
		for t := range m.AssetTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-16s %s\n", t, formatFloat(m.AssetTypes[t]))
		}
	}
	fmt.Println()
}

func renderMessages(msgs []advisory.Message) {
	accent.Println("\n== MENTOR ADVICE ==")
	if len(msgs) == 0 {
		printInfo("Your mentors have nothing to add right now.")
		return
	}
	for _, m := range msgs {
		header := fmt.Sprintf("%s [%s]", mentorName(m.Mentor), m.TriggerType)
		if m.Priority >= 5 {
			danger.Println(header)
		} else {
			accent.Println(header)
		}
		fmt.Println("  " + m.Body)
		if m.CTAText != "" {
			fmt.Printf("  > %s (+%d pts)\n", m.CTAText, m.PointsReward)
		} else if m.CTAReason != "" {
			neutral.Printf("  (%s)\n", m.CTAReason)
		}
		fmt.Println()
	}
}

func renderStats(s advisory.Stats) {
	accent.Println("\n== MENTOR STATS ==")
	fmt.Printf("Messages:        %d\n", s.TotalMessages)
	fmt.Printf("Read:            %d (%.0f%%)\n", s.MessagesRead, s.EngagementRate*100)
	fmt.Printf("Advice followed: %d (%.0f%%)\n", s.AdviceFollowed, s.ActionRate*100)
	fmt.Printf("Points:          %d\n", s.TotalPoints)
	if len(s.MentorScores) > 0 {
		names := make([]string, 0, len(s.MentorScores))
		for n := range s.MentorScores {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Println()
		accent.Println("Relationship")
		for _, n := range names {
			fmt.Printf("  %-14s %d\n", truncate(n, 14), s.MentorScores[n])
		}
	}
	fmt.Println()
}

func renderNotifications(rows []store.Notification) {
	accent.Println("\n== NOTIFICATIONS ==")
	if len(rows) == 0 {
		printInfo("Inbox empty.")
		return
	}
	for _, n := range rows {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, n.CreatedAt.Local().Format("Jan 02 15:04"), n.Title)
		fmt.Println("    " + truncate(n.Message, 100))
	}
	fmt.Println()
}

func mentorName(m advisory.Mentor) string {
	if m.Name != "" {
		return m.Name
	}
	return string(m.Persona)
}

func changePercent(from, to decimal.Decimal) float64 {
	if from.IsZero() {
		return 0
	}
	return money.Ratio(to.Sub(from), from) * 100
}

func formatMoney(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + money.Format(v.Neg())
	}
	return "$" + money.Format(v)
}

func formatFloat(v float64) string {
	return formatMoney(decimal.NewFromFloat(v))
}

func colorizeMoney(v decimal.Decimal) string {
	text := formatMoney(v)
	switch {
	case v.IsPositive():
		return success.Sprint("+" + text)
	case v.IsNegative():
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeFloat(v float64) string {
	return colorizeMoney(decimal.NewFromFloat(v))
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
