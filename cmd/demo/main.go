// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/Corphon/LifeBranches/internal/api"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	cliBoxMaxWidth = 96
	requestTimeout = 10 * time.Second
)

// demoStep is one request of the scripted session.
type demoStep struct {
	label    string
	event    *api.EventRequest
	control  string
	narrated bool
}

func main() {
	fmt.Println("🌳 LifeBranches Relay Console")
	fmt.Println("=============================")

	_ = godotenv.Load()
	baseURL := getEnv("RELAY_URL", "http://localhost:8080")
	client := newRelayClient(baseURL, os.Getenv("RELAY_TOKEN"))

	// 初始化日志系统
	logFile := fmt.Sprintf("logs/relay_console_%s.log", time.Now().Format("2006-01-02"))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 无法初始化日志: %v", err)
	}
	logger := utils.GetLogger().With("console")
	logger.Info("Relay console starting", map[string]interface{}{"relay": baseURL})

	in := bufio.NewScanner(os.Stdin)
	for {
		showMenu(baseURL)
		choice := getUserInput(in, "选择> ")

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		var err error
		switch choice {
		case "1", "event":
			err = sendEvent(ctx, in, client)
		case "2", "narrated":
			err = sendNarrated(ctx, in, client)
		case "3", "script":
			cancel()
			ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
			err = runScript(ctx, client, defaultScript(), func(line string) { fmt.Println(line) })
		case "4", "split":
			err = control(ctx, client, "split-all")
		case "5", "random":
			err = control(ctx, client, "random-event")
		case "6", "pause":
			err = control(ctx, client, "pause")
		case "7", "resume":
			err = control(ctx, client, "resume")
		case "8", "state":
			err = showState(ctx, client)
		case "9", "commentary":
			err = showCommentary(ctx, client)
		case "10", "export":
			err = showExport(ctx, client)
		case "0", "quit", "exit":
			cancel()
			fmt.Println("👋 再见")
			return
		default:
			fmt.Println("无效选择")
		}
		cancel()

		if err != nil {
			fmt.Printf("❌ %v\n", err)
			logger.Warn("relay request failed", map[string]interface{}{"choice": choice, "error": err.Error()})
		}
		fmt.Println()
	}
}

func showMenu(baseURL string) {
	printBox("Relay "+baseURL, strings.Join([]string{
		"1. 发送事件 (event)",
		"2. 发送解说事件 (narrated)",
		"3. 运行演示脚本 (script)",
		"4. 全部分支分裂 (split)",
		"5. 随机事件 (random)",
		"6. 暂停 (pause)",
		"7. 继续 (resume)",
		"8. 当前状态 (state)",
		"9. 最近解说 (commentary)",
		"10. 导出世界 (export)",
		"0. 退出 (quit)",
	}, "\n"))
}

// 获取用户输入
func getUserInput(in *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !in.Scan() {
		return "quit"
	}
	return strings.TrimSpace(in.Text())
}

// 获取用户输入 (带默认值)
func getUserInputWithDefault(in *bufio.Scanner, prompt, defaultValue string) string {
	if defaultValue != "" {
		prompt = fmt.Sprintf("%s [默认: %s]: ", prompt, defaultValue)
	} else {
		prompt += ": "
	}
	if v := getUserInput(in, prompt); v != "" && v != "quit" {
		return v
	}
	return defaultValue
}

func getIntWithDefault(in *bufio.Scanner, prompt string, defaultValue int) (int, error) {
	raw := getUserInputWithDefault(in, prompt, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number: %q", prompt, raw)
	}
	return n, nil
}

func sendEvent(ctx context.Context, in *bufio.Scanner, client *relayClient) error {
	req := api.EventRequest{Event: getUserInputWithDefault(in, "事件名", "promotion")}
	var err error
	if req.Year, err = getIntWithDefault(in, "年份 (0 = 当前)", 0); err != nil {
		return err
	}
	if req.Month, err = getIntWithDefault(in, "月份", 1); err != nil {
		return err
	}
	if req.BranchID, err = getIntWithDefault(in, "分支", 0); err != nil {
		return err
	}

	ev, err := client.SendEvent(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("✅ %s queued for branch %d at month %d\n", ev.EventName, ev.BranchID, ev.MonthIndex)
	return nil
}

func sendNarrated(ctx context.Context, in *bufio.Scanner, client *relayClient) error {
	text := getUserInputWithDefault(in, "解说文本", "A big change is coming")
	data := api.RelayPayload{RecentEvent: getUserInputWithDefault(in, "事件名", "new_job")}
	var err error
	if data.Year, err = getIntWithDefault(in, "年份 (0 = 当前)", 0); err != nil {
		return err
	}
	if data.Month, err = getIntWithDefault(in, "月份", 1); err != nil {
		return err
	}
	if data.BranchID, err = getIntWithDefault(in, "分支", 0); err != nil {
		return err
	}
	if name := getUserInputWithDefault(in, "名字 (可选)", ""); name != "" {
		data.Name = &name
	}

	ev, err := client.SendNarrated(ctx, text, data)
	if err != nil {
		return err
	}
	fmt.Printf("✅ %s queued for branch %d at month %d\n", ev.EventName, ev.BranchID, ev.MonthIndex)
	return nil
}

func control(ctx context.Context, client *relayClient, action string) error {
	out, err := client.Control(ctx, action, nil)
	if err != nil {
		return err
	}
	fmt.Printf("✅ %s: %s\n", action, string(out))
	return nil
}

func showState(ctx context.Context, client *relayClient) error {
	snap, err := client.State(ctx)
	if err != nil {
		return err
	}
	lines := []string{fmt.Sprintf("%s  queued %d  paused %v", snap.MonthLabel, snap.QueueLength, snap.Paused)}
	for _, b := range snap.Branches {
		s := b.State
		lines = append(lines, fmt.Sprintf("#%d %s  money %d  wage %d  loan %d  %s  kids %d",
			b.ID, s.Name, s.Money, s.MonthlyWage, s.CurrentLoan, s.MaritalStatus, s.ChildCount))
	}
	printBox("State", strings.Join(lines, "\n"))
	return nil
}

func showCommentary(ctx context.Context, client *relayClient) error {
	comments, err := client.Commentary(ctx, 5)
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		fmt.Println("(no commentary yet)")
		return nil
	}
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, fmt.Sprintf("%s #%d: %s", c.MonthLabel, c.BranchID, c.Text))
	}
	printBox("Commentary", strings.Join(lines, "\n"))
	return nil
}

func showExport(ctx context.Context, client *relayClient) error {
	file, err := client.Export(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// defaultScript exercises the relay the way a narrating producer does,
// including events for branches that only exist after a split.
func defaultScript() []demoStep {
	year := 2025
	return []demoStep{
		{label: "marry on branch 0", event: &api.EventRequest{Event: "marry", Year: year, Month: 3, BranchID: 0}},
		{label: "promotion on branch 1", event: &api.EventRequest{Event: "promotion", Year: year, Month: 4, BranchID: 1}},
		{label: "kid on future branch 3", event: &api.EventRequest{Event: "kid", Year: year, Month: 6, BranchID: 3}},
		{label: "split every branch", control: "split-all"},
		{label: "narrated layoff on branch 2", narrated: true, event: &api.EventRequest{
			Text: "Out of nowhere, the pink slip lands!",
			Data: &api.RelayPayload{RecentEvent: "layoff", Year: year, Month: 8, BranchID: 2},
		}},
		{label: "loan on branch 0", event: &api.EventRequest{Event: "take_loan", Year: year, Month: 9, BranchID: 0}},
	}
}

func runScript(ctx context.Context, client *relayClient, steps []demoStep, report func(string)) error {
	for i, step := range steps {
		var err error
		switch {
		case step.control != "":
			_, err = client.Control(ctx, step.control, nil)
		case step.narrated:
			_, err = client.SendNarrated(ctx, step.event.Text, *step.event.Data)
		default:
			_, err = client.SendEvent(ctx, *step.event)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.label, err)
		}
		report(fmt.Sprintf("✅ %d/%d %s", i+1, len(steps), step.label))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func printBox(title, content string) {
	wrappedLines := wrapContentForBox(content, cliBoxMaxWidth)
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range wrappedLines {
		if w := utf8.RuneCountInString(line); w > maxWidth {
			maxWidth = w
		}
	}
	border := strings.Repeat("─", maxWidth+2)
	fmt.Println("┌" + border + "┐")
	if title != "" {
		fmt.Printf("│ %s │\n", padRight(title, maxWidth))
		fmt.Println("├" + border + "┤")
	}
	for _, line := range wrappedLines {
		fmt.Printf("│ %s │\n", padRight(line, maxWidth))
	}
	fmt.Println("└" + border + "┘")
}

func wrapContentForBox(content string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{content}
	}
	var result []string
	for _, rawLine := range strings.Split(content, "\n") {
		runes := []rune(strings.TrimRight(rawLine, " "))
		for len(runes) > maxWidth {
			result = append(result, string(runes[:maxWidth]))
			runes = runes[maxWidth:]
		}
		result = append(result, string(runes))
	}
	return result
}

func padRight(text string, width int) string {
	current := utf8.RuneCountInString(text)
	if current >= width {
		return text
	}
	return text + strings.Repeat(" ", width-current)
}
