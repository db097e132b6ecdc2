package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/date-rehearsal/backend/internal/audio/mic"
	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/capture"
	chatservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	modeFlag := flag.String("mode", "text", "排练模式: text 或 voice")
	avatarID := flag.String("avatar", avatar.DefaultID, "约会对象 ID")
	backend := flag.String("backend", "", "覆盖 EMOTION_BACKEND (hume/llm/keyword)")
	flag.Parse()

	mode, ok := chat.ParseMode(*modeFlag)
	if !ok {
		flag.Usage()
		log.Fatal("请通过 -mode=text 或 -mode=voice 指定模式")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if *backend != "" {
		name, err := config.ParseBackend(*backend)
		if err != nil {
			flag.Usage()
			log.Fatalf("-backend 参数无效: %v", err)
		}
		cfg.Emotion.Backend = name
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := emotionservice.NewClientFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("情绪分析初始化失败: %v", err)
	}

	avatars := avatar.NewMemoryStore(avatar.Seed())
	manager := rehearsal.NewManager(chatservice.NewService(avatars), client, rehearsal.Config{
		PollInterval: cfg.Emotion.PollInterval,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
		LevelRefresh: cfg.Audio.LevelRefresh,
	})
	defer manager.Close()

	var device capture.Device
	if mode == chat.ModeVoice {
		device = mic.New(cfg.Audio.SampleRate, cfg.Audio.Channels)
	}

	session, err := manager.Create(ctx, rehearsal.CreateOptions{AvatarID: *avatarID, Mode: mode, Device: device})
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}

	profile, _ := avatars.FindByID(session.Snapshot().AvatarID)
	fmt.Printf("Rehearsing with %s (%s). Mode: %s\n", profile.Name, profile.Tagline, mode)
	if mode == chat.ModeVoice {
		fmt.Println("Press Enter to start recording, Enter again to stop. /end finishes the session.")
	} else {
		fmt.Println("Type a message and press Enter. /end finishes the session.")
	}

	go printEvents(ctx, session)

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			printReport(session)
			return
		case line, open := <-lines:
			if !open || strings.TrimSpace(line) == "/end" {
				printReport(session)
				return
			}
			handleLine(ctx, session, mode, line)
		}
	}
}

func handleLine(ctx context.Context, session *rehearsal.Session, mode chat.Mode, line string) {
	if mode == chat.ModeVoice && strings.TrimSpace(line) == "" {
		if session.Snapshot().Recording {
			if err := session.StopRecording(); err != nil {
				fmt.Printf("! %v\n", err)
			}
			return
		}
		if err := session.StartRecording(ctx); err != nil {
			fmt.Printf("! %v\n", err)
			return
		}
		fmt.Println("● recording... press Enter to stop")
		return
	}

	if _, err := session.SubmitUserMessage(line); err != nil {
		fmt.Printf("! %v\n", err)
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func printEvents(ctx context.Context, session *rehearsal.Session) {
	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	seen := len(session.Snapshot().History)
	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			switch event.Type {
			case rehearsal.EventLevel:
				fmt.Printf("\r%s", levelBar(event.Level))
			case rehearsal.EventSnapshot:
				snapshot := event.Snapshot
				for _, msg := range snapshot.History[min(seen, len(snapshot.History)):] {
					if msg.Speaker == chat.SpeakerAvatar {
						fmt.Printf("\n[%s] %s\n", msg.Emotion, msg.Text)
					}
				}
				seen = len(snapshot.History)

				current := ""
				if snapshot.LastError != nil {
					current = snapshot.LastError.Message
				}
				if current != "" && current != lastErr {
					fmt.Printf("\n! emotion analysis failed: %s\n", current)
				}
				lastErr = current
			}
		}
	}
}

func levelBar(level float64) string {
	const width = 30
	filled := int(level * width)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

func printReport(session *rehearsal.Session) {
	report := session.End()
	fmt.Println()
	fmt.Println("=== Feedback ===")
	fmt.Printf("Engagement: %s (%d messages)\n", report.Engagement, report.UserMessageCount)
	fmt.Println(report.EngagementMessage)
	fmt.Printf("Final emotion: %s\n", report.FinalEmotion)
	fmt.Println(report.ToneMessage)
}
