//go:build js && wasm

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tarndt/wsweb"
)

const (
	echoURL      = "ws://localhost:8765"
	websocketURL = "ws://localhost:8080/grpc-proxy"
	useTLS       = false
)

func main() {
	log := logrus.New()

	//App context setup
	appCtx, appCancel := context.WithTimeout(context.Background(), time.Minute)
	defer appCancel()

	if err := echoTest(appCtx, log); err != nil {
		log.WithError(err).Fatal("Echo test failed")
	}
	if err := grpcTest(appCtx, log); err != nil {
		log.WithError(err).Fatal("gRPC test failed")
	}
}

//echoTest sends messages from one goroutine while receiving them on another, then
// closes the connection.
func echoTest(ctx context.Context, log *logrus.Logger) error {
	ws, err := wsweb.Connect(ctx, echoURL, wsweb.WithLogger(log))
	if err != nil {
		return err
	}
	rx, tx := ws.Split()
	defer rx.Release()
	defer tx.Release()

	const count = 64
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		for i := 0; i < count; i++ {
			if err := tx.Send(grpCtx, wsweb.TextFrame(fmt.Sprintf("hello %d", i))); err != nil {
				return err
			}
		}
		return nil
	})
	grp.Go(func() error {
		for i := 0; i < count; i++ {
			f, err := rx.Next(grpCtx)
			if err != nil {
				return err
			}
			if expected := fmt.Sprintf("hello %d", i); f.Text() != expected {
				return fmt.Errorf("Echo server returned %q rather than %q!", f.Text(), expected)
			}
		}
		return nil
	})
	if err = grp.Wait(); err != nil {
		return err
	}

	if err = ws.Close(wsweb.StatusNormalClosure, "done"); err != nil {
		return err
	}
	info, err := ws.Closed(ctx)
	if err != nil {
		return err
	}
	log.WithField("close", info.String()).Info("SUCCESS running echo test")
	return nil
}

func grpcTest(ctx context.Context, log *logrus.Logger) error {
	//Dial setup
	const dialTO = time.Second
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTO)
	defer dialCancel()

	//Connect to remote gRPC server
	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	}
	conn, err := grpc.DialContext(dialCtx, "passthrough:///"+websocketURL, grpc.WithContextDialer(wsweb.GRPCDialer), grpc.WithDisableRetry(), grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("Could not gRPC dial: %s; Details: %w", websocketURL, err)
	}
	defer conn.Close()

	//Test transactions
	client := healthpb.NewHealthClient(conn)
	start := time.Now()
	const ops = 1024
	for i := 1; i <= ops; i++ {
		if err := testTrans(ctx, client); err != nil {
			return fmt.Errorf("Test transaction %d failed; Details: %w", i, err)
		}
	}
	log.Infof("SUCCESS running %d transactions! (average %s per operation)", ops, time.Duration(float64(time.Since(start))/ops))
	return nil
}

func testTrans(ctx context.Context, client healthpb.HealthClient) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("Could not check health of server; Details: %w", err)
	}
	if reply.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("Server is %s", reply.GetStatus())
	}
	return nil
}
