package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quizforge"

	"github.com/google/uuid"
)

// consoleNotifier echoes progress to stderr before recording it
type consoleNotifier struct {
	next quizforge.Notifier
}

func (n consoleNotifier) Notify(ctx context.Context, correlationID, message string) error {
	fmt.Fprintf(os.Stderr, "⏳ %s\n", message)
	return n.next.Notify(ctx, correlationID, message)
}

func main() {
	var (
		prompt       = flag.String("prompt", "", "Quiz description (required)")
		numQuestions = flag.Int("questions", 5, "Number of questions to generate")
		knowledge    = flag.String("knowledge", "", "Knowledge file: a local file to upload or a stored path")
		quizID       = flag.String("quiz-id", "", "Quiz id (default: random uuid)")
		owner        = flag.String("owner", "local-user", "Identity subject recorded as quiz owner")
		dbPath       = flag.String("db", "", "SQLite database path (default: DB_PATH or ./quiz.db)")
		outputFile   = flag.String("output", "", "Output file for quiz JSON (default: stdout)")
		playMode     = flag.Bool("play", false, "Play the quiz interactively after generating it")
		verbose      = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	cfg, err := quizforge.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := quizforge.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	quizforge.SetLogger(log)
	quizforge.SetVerbose(*verbose)

	if *prompt == "" {
		log.Fatal("Prompt is required. Use -prompt flag.")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}
	if *dbPath == "" {
		*dbPath = cfg.DBPath
	}
	if *quizID == "" {
		*quizID = uuid.NewString()
	}

	db, err := quizforge.OpenDB(*dbPath)
	if err != nil {
		log.Fatalw("Failed to open database", "error", err)
	}
	defer db.CloseDB()
	if err := db.CreateTables(); err != nil {
		log.Fatalw("Failed to create tables", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalw("Failed to open knowledge store", "error", err)
	}

	ref := *knowledge
	if ref != "" {
		if data, rerr := os.ReadFile(ref); rerr == nil {
			path, perr := quizforge.KnowledgePath(*owner, filepath.Base(ref))
			if perr != nil {
				log.Fatalw("Invalid knowledge file", "error", perr)
			}
			if ref, err = store.Put(ctx, path, data); err != nil {
				log.Fatalw("Failed to upload knowledge file", "error", err)
			}
			quizforge.VerboseLog("Uploaded %s (%d bytes) to %s", *knowledge, len(data), ref)
		}
	}

	publisher := quizforge.NewProgressPublisher(db, quizforge.NewMemoryHub())
	generator := quizforge.NewQuizGenerator(
		quizforge.NewKnowledgeExtractor(store),
		quizforge.NewQuizSynthesizer(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		quizforge.NewPersistenceGateway(db),
		consoleNotifier{next: publisher},
	)
	if cfg.LLMLogDir != "" {
		generator.SetLLMLogDir(cfg.LLMLogDir)
	}

	req := quizforge.GenerationRequest{
		QuizID:       *quizID,
		Knowledge:    ref,
		Prompt:       *prompt,
		NumQuestions: *numQuestions,
	}

	ctx = quizforge.WithIdentity(ctx, quizforge.Identity{Subject: *owner})
	quiz, err := generator.GenerateQuiz(ctx, req)
	if err != nil {
		log.Fatalw("Failed to generate quiz", "error", err)
	}

	if *playMode {
		playQuiz(context.Background(), db, quiz, *owner)
		return
	}

	output, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		log.Fatalw("Failed to marshal quiz", "error", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalw("Failed to write output file", "error", err)
		}
		log.Infow("Quiz saved", "path", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

func openStore(ctx context.Context, cfg *quizforge.Config) (quizforge.ObjectStore, error) {
	if cfg.BucketName != "" {
		return quizforge.NewGCSStore(ctx, cfg.BucketName, cfg.BucketRegion)
	}
	return quizforge.NewFileStore(cfg.KnowledgeDir)
}

// readLines feeds stdin lines to a channel so answers can be read against a deadline
func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()
	return lines
}

func playQuiz(ctx context.Context, db *quizforge.DB, quiz *quizforge.Quiz, player string) {
	fmt.Printf("🎯 %s\n", quiz.Title)
	if quiz.Description != "" {
		fmt.Printf("%s\n", quiz.Description)
	}
	fmt.Printf("📝 Questions: %d\n\n", len(quiz.Questions))

	lines := readLines()
	letters := "ABCDEFGH"
	score := 0
	answers := make([]string, 0, len(quiz.Questions))

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		fmt.Printf("Question %d/%d:\n", i+1, len(quiz.Questions))
		fmt.Printf("%s\n\n", q.Text)

		time.Sleep(quizforge.EffectivePreviewTime(quiz, q))

		for j, a := range q.Answers {
			if j < len(letters) {
				fmt.Printf("%c) %s\n", letters[j], a.Text)
			}
		}
		window := quizforge.EffectiveAnswerTime(quiz, q)
		fmt.Printf("\n⏱️  You have %s. Your answer: ", window)

		started := time.Now()
		answerID := ""
		timer := time.NewTimer(window)
	wait:
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					break wait
				}
				idx := strings.Index(letters, strings.ToUpper(line))
				if len(line) == 1 && idx >= 0 && idx < len(q.Answers) {
					answerID = q.Answers[idx].ID
					break wait
				}
				fmt.Printf("Please enter a letter between A and %c: ", letters[min(len(q.Answers), len(letters))-1])
			case <-timer.C:
				fmt.Println("\n⌛ Time's up!")
				break wait
			}
		}
		timer.Stop()

		elapsed := time.Since(started)
		points := quizforge.ScoreAnswer(quiz, q, answerID, elapsed)
		score += points
		answers = append(answers, answerID)

		fmt.Println()
		if answerID == q.CorrectAnswerID {
			fmt.Printf("✅ Correct! +%d points (%.1fs)\n", points, elapsed.Seconds())
		} else {
			fmt.Printf("❌ Incorrect. The correct answer is: %s\n", quizforge.AnswerText(q, q.CorrectAnswerID))
		}
		if q.Explanation != "" {
			fmt.Printf("💡 Explanation: %s\n", q.Explanation)
		}
		fmt.Println()
		fmt.Println(strings.Repeat("─", 50))
		fmt.Println()
	}

	total := quizforge.TotalPossible(quiz)
	fmt.Println("🎉 Quiz completed!")
	fmt.Printf("🏆 Score: %d/%d\n", score, total)

	attempt := &quizforge.QuizAttempt{
		ID:            uuid.NewString(),
		QuizID:        quiz.ID,
		UserID:        player,
		Score:         score,
		TotalPossible: total,
		Answers:       answers,
	}
	if err := db.CreateAttempt(ctx, attempt); err != nil {
		quizforge.Logger().Errorw("Failed to save attempt", "error", err)
	}
}
