// Command click is a terminal clicker game exercising the full stack: log in
// through a browser, keep a per-player score document in the click collection,
// watch it for remote changes, and race a top-ten leaderboard.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"
	"firelink/internal/infra/auth/identity"
	"firelink/internal/infra/auth/loopback"
	"firelink/internal/infra/auth/provider"
	"firelink/internal/infra/auth/tokencache"
	"firelink/internal/infra/firestore"
	logs "firelink/internal/infra/log"
	"firelink/internal/loop"
	"firelink/internal/usecase"
	"firelink/internal/usecase/impl"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

const tickRate = 60

func main() {
	fx.New(
		injectInfra(),
		injectService(),
		injectUsecase(),
		fx.Invoke(runGame),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		loop.New,
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			provider.FromConfig,
			identity.NewClient,
			tokencache.New,
			loopback.NewFactory,
			newStoreDialer,
		),
	)
}

func newStoreDialer(cfg *config.Config) impl.StoreDialer {
	return func(idToken string) (service.DocumentStore, error) {
		return firestore.Dial(cfg, idToken)
	}
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthService,
			impl.NewStoreService,
		),
	)
}

type gameParams struct {
	fx.In
	fx.Lifecycle
	Shutdowner fx.Shutdowner

	Logger *slog.Logger
	Loop   *loop.Loop
	Auth   usecase.AuthUsecase
	Store  usecase.StoreUsecase
}

func runGame(params gameParams) {
	g := &game{
		logger: params.Logger,
		lp:     params.Loop,
		auth:   params.Auth,
		store:  params.Store,
		quit:   params.Shutdowner,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go g.readCommands()
			go func() {
				defer close(done)
				g.run(ctx)
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}

			return nil
		},
	})
}

// opIDs for the fixed set of operations the game issues. Responses echo the
// id, so each handler branch knows exactly which request it answers.
const (
	opCreatePlayer int64 = iota + 1
	opReadPlayer
	opClick
	opLeaderboard
)

type game struct {
	logger *slog.Logger
	lp     *loop.Loop
	auth   usecase.AuthUsecase
	store  usecase.StoreUsecase
	quit   fx.Shutdowner

	uid      string
	score    int64
	listener uuid.UUID
}

// run owns the tick loop. Everything below here, including all usecase
// handlers, executes on this goroutine.
func (g *game) run(ctx context.Context) {
	g.auth.SetAuthURLHandler(g.onAuthURLs)
	g.auth.SetSessionHandler(g.onSession)
	g.store.SetResponseHandler(g.onResponse)
	g.store.SetListenerHandler(g.onListenerEvent)

	fmt.Println("commands: login | click | top | logout | delete | quit")
	g.auth.LogIn()

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.store.Close()

			return
		case <-ticker.C:
			g.lp.Tick()
		}
	}
}

// readCommands feeds stdin lines into the tick loop.
func (g *game) readCommands() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		g.lp.Post(func() {
			g.handleCommand(command)
		})
	}
}

func (g *game) handleCommand(command string) {
	switch command {
	case "login":
		g.auth.LogIn()
	case "click":
		g.click()
	case "top":
		g.store.Dispatch(usecase.QueryRequest{
			ID:           opLeaderboard,
			CollectionID: "click",
			OrderByField: "score",
			Direction:    service.Descending,
			Limit:        10,
		})
	case "logout":
		g.auth.LogOut()
	case "delete":
		g.auth.DeleteAccount()
	case "quit":
		if err := g.quit.Shutdown(); err != nil {
			g.logger.Error("shutdown failed", slog.Any("error", err))
		}
	case "":
	default:
		fmt.Printf("unknown command %q\n", command)
	}
}

func (g *game) onAuthURLs(urls map[entity.Provider]string) {
	fmt.Println("log in with one of:")
	for name, u := range urls {
		fmt.Printf("  %s: %s\n", name, u)
	}
}

func (g *game) onSession(session *entity.Session) {
	g.store.OnSessionChanged(session)

	if !session.LoggedIn() {
		g.uid = ""
		g.score = 0
		g.listener = uuid.Nil

		return
	}

	g.uid = session.UserID

	nickname := session.Claims.DisplayName
	if nickname == "" {
		nickname = session.UserID
	}

	g.store.Dispatch(usecase.CreateRequest{
		ID:           opCreatePlayer,
		CollectionID: "click",
		DocumentID:   session.UserID,
		Fields: map[string]*firestorepb.Value{
			"nickname": {ValueType: &firestorepb.Value_StringValue{StringValue: nickname}},
			"score":    {ValueType: &firestorepb.Value_IntegerValue{IntegerValue: 0}},
		},
	})
}

func (g *game) click() {
	if g.uid == "" {
		fmt.Println("log in first")

		return
	}

	g.score++
	g.store.Dispatch(usecase.UpdateRequest{
		ID:           opClick,
		DocumentPath: "click/" + g.uid,
		Fields: map[string]*firestorepb.Value{
			"score": {ValueType: &firestorepb.Value_IntegerValue{IntegerValue: g.score}},
		},
	})
}

func (g *game) onResponse(response usecase.Response) {
	switch response.ID {
	case opCreatePlayer:
		if response.Err != nil {
			// Returning players already have a document; pick up their score.
			g.store.Dispatch(usecase.ReadRequest{
				ID:           opReadPlayer,
				DocumentPath: "click/" + g.uid,
			})

			return
		}

		g.watchScore()
	case opReadPlayer:
		if response.Err != nil {
			g.logger.Error("failed to load player document", slog.Any("error", response.Err))

			return
		}

		g.score = response.Document.GetFields()["score"].GetIntegerValue()
		fmt.Printf("welcome back, score %d\n", g.score)
		g.watchScore()
	case opClick:
		if response.Err != nil {
			g.logger.Error("click lost", slog.Any("error", response.Err))
		}
	case opLeaderboard:
		if response.Err != nil {
			g.logger.Error("leaderboard query failed", slog.Any("error", response.Err))

			return
		}

		g.printLeaderboard(response.Results)
	}
}

func (g *game) watchScore() {
	if g.listener != uuid.Nil {
		g.store.RemoveListener(g.listener)
	}

	id, ok := g.store.AddListener("click/"+g.uid, "score")
	if !ok {
		g.logger.Warn("score listener unavailable, store not ready")

		return
	}

	g.listener = id
}

func (g *game) onListenerEvent(event usecase.ListenerEvent) {
	if event.Err != nil {
		g.logger.Warn("score listener closed", slog.Any("error", event.Err))
		g.listener = uuid.Nil

		return
	}

	change := event.Message.GetDocumentChange()
	if change == nil {
		return
	}

	score := change.GetDocument().GetFields()["score"].GetIntegerValue()
	if score != g.score {
		g.score = score
		fmt.Printf("score synced to %d\n", score)
	}
}

func (g *game) printLeaderboard(results []*firestorepb.RunQueryResponse) {
	fmt.Println("top players:")
	rank := 0
	for _, result := range results {
		document := result.GetDocument()
		if document == nil {
			continue
		}

		rank++
		fields := document.GetFields()
		fmt.Printf("  %2d. %s %d\n", rank,
			fields["nickname"].GetStringValue(),
			fields["score"].GetIntegerValue())
	}
}
