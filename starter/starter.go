package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"farmer-registration/apperr"
	"farmer-registration/backend"
	"farmer-registration/checkout"
	"farmer-registration/codec"
	"farmer-registration/config"
	"farmer-registration/flow"
	"farmer-registration/models"
	"farmer-registration/submission"
	"farmer-registration/view"
	"farmer-registration/workflows"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

const help = `Commands:
  otp <phone> <full name>   send an OTP
  resend                    resend the OTP after the cooldown
  verify <code>             verify the OTP
  edit <phone>              change the phone number
  coupon <code>             apply a coupon / referral code
  pay                       proceed to payment
  details                   fill in and submit the registration details
  resume                    retry completing a paid registration
  restart                   start a new registration
  state                     print the current registration state
  quit`

func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	query := flag.Bool("query", false, "Query finalization workflow state")
	reference := flag.String("reference", "", "Registration reference for -query")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *query {
		if *reference == "" {
			log.Fatal("Registration reference is required for query operations. Use -reference flag")
		}
		c := dialTemporal(cfg, logger)
		defer c.Close()
		queryFinalizationState(ctx, c, *reference)
		return
	}

	api, err := backend.NewClient(cfg.APIBaseURL, backend.WithLogger(logger))
	if err != nil {
		log.Fatalf("Unable to create backend client: %v", err)
	}

	widget := checkout.NewServer(checkout.Config{
		ScriptURL: cfg.CheckoutScriptURL,
		BaseURL:   "http://" + cfg.CheckoutAddr,
		Present: func(url string) {
			fmt.Printf("\nOpen %s in your browser to complete the payment.\n", url)
		},
		Logger: logger,
	})
	httpServer := &http.Server{Addr: cfg.CheckoutAddr, Handler: widget.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Checkout server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Checkout server shutdown failed: %v", err)
		}
	}()

	var finalizer submission.Finalizer
	if cfg.Finalizer == config.FinalizerTemporal {
		c := dialTemporal(cfg, logger)
		defer c.Close()
		finalizer = submission.NewTemporalFinalizer(c, cfg.TaskQueue, logger)
	}

	ctrl := flow.New(api, widget, flow.Options{
		DefaultAmount:  cfg.DefaultAmount,
		FallbackAmount: cfg.DiscountedAmount,
		OTPLength:      cfg.OTPLength,
		ResendCooldown: cfg.ResendCooldown,
		OTPExpiry:      cfg.OTPExpiry,
		CouponDebounce: cfg.CouponDebounce,
		Policy:         cfg.VerifyPolicy,
		Finalizer:      finalizer,
		Logger:         logger,
	})
	defer ctrl.Close()

	ctrl.Screen().Subscribe(printEvent)

	go func() {
		if err := ctrl.Adapter().EnsureLoaded(ctx); err != nil {
			logger.Warn("payment widget preload failed", "error", err)
		}
	}()

	fmt.Printf("Natural farming registration. Fee: %s\n", ctrl.Screen().Amount())
	fmt.Println(help)
	run(ctx, ctrl, bufio.NewReader(os.Stdin))
}

func dialTemporal(cfg config.Config, logger *slog.Logger) client.Client {
	keyBytes := cfg.EncryptionKey
	if keyBytes == nil {
		keyBytes = make([]byte, 32)
		if _, err := rand.Read(keyBytes); err != nil {
			log.Fatalf("Failed to generate encryption key: %v", err)
		}
		log.Printf("Warning: Using generated encryption key. Set ENCRYPTION_KEY env var to match worker.")
		log.Printf("Generated key: %s", hex.EncodeToString(keyBytes))
	}

	dataConverter, err := codec.NewEncryptionDataConverter(keyBytes)
	if err != nil {
		log.Fatalf("Failed to create encryption data converter: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:      cfg.TemporalAddress,
		DataConverter: dataConverter,
		Logger:        tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	return c
}

func printEvent(e view.Event) {
	switch e.Type {
	case "alert":
		fmt.Printf("\n[!] %s\n", e.Value)
	case "status":
		if e.Value != "" {
			fmt.Printf("    %s: %s\n", e.Target, e.Value)
		}
	case "amount":
		fmt.Printf("    amount: %s\n", e.Value)
	case "section":
		if e.Value == "true" {
			fmt.Printf("--- %s ---\n", e.Target)
		}
	}
}

func run(ctx context.Context, ctrl *flow.Controller, in *bufio.Reader) {
	for {
		fmt.Print("> ")
		line, err := in.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("Failed to read input: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		cmd, args, _ := strings.Cut(strings.TrimSpace(line), " ")
		args = strings.TrimSpace(args)

		switch cmd {
		case "":
		case "otp":
			phone, name, _ := strings.Cut(args, " ")
			report(ctrl.SendOTP(ctx, name, phone))
		case "resend":
			report(ctrl.ResendOTP(ctx))
		case "verify":
			report(ctrl.VerifyOTP(ctx, args))
		case "edit":
			report(ctrl.EditPhone(args))
		case "coupon":
			_, err := ctrl.ApplyCoupon(ctx, args)
			report(err)
		case "pay":
			report(ctrl.ProceedToPayment(ctx))
		case "details":
			form, err := readForm(in, ctrl.State())
			if err != nil {
				return
			}
			_, err = ctrl.SubmitDetails(ctx, form)
			report(err)
		case "resume":
			_, err := ctrl.ResumeFinalization(ctx)
			report(err)
		case "restart":
			report(ctrl.Restart(ctx))
		case "state":
			printState(ctrl)
		case "help":
			fmt.Println(help)
		case "quit", "exit":
			return
		default:
			fmt.Printf("Unknown command %q\n", cmd)
		}
	}
}

// report prints errors that did not already reach the screen as an alert
func report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, apperr.ErrBusy) || errors.Is(err, apperr.ErrSuperseded) {
		fmt.Printf("    (%s)\n", err)
	}
}

func printState(ctrl *flow.Controller) {
	out := struct {
		Stage    string          `json:"stage"`
		OTPState string          `json:"otp_state"`
		Amount   string          `json:"amount"`
		State    models.Snapshot `json:"state"`
		Verified bool            `json:"verified"`
	}{
		Stage:    ctrl.Stage(),
		OTPState: ctrl.OTPState(),
		Amount:   ctrl.Screen().Amount(),
		State:    ctrl.State(),
		Verified: ctrl.State().Verified(),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal state: %v", err)
		return
	}
	fmt.Println(string(b))
}

func readForm(in *bufio.Reader, snap models.Snapshot) (models.FarmerForm, error) {
	form := models.FarmerForm{
		RegistrationDate: time.Now().Format("2006-01-02"),
		FarmerName:       snap.FarmerName,
		ContactNumber:    snap.PhoneNumber,
	}

	prompts := []struct {
		label string
		dst   *string
	}{
		{"Farmer Name", &form.FarmerName},
		{"Father / Spouse Name", &form.FatherSpouseName},
		{"Email ID (optional)", &form.EmailID},
		{"Aadhaar / Farmer ID (optional)", &form.AadhaarFarmerID},
		{"Village / Panchayat", &form.VillagePanchayat},
		{"Mandal / Block", &form.MandalBlock},
		{"District", &form.District},
		{"State", &form.State},
		{"Total Land", &form.TotalLand},
		{"Land Unit", &form.LandUnit},
		{"Area Under Natural Farming", &form.AreaNaturalFarming},
		{"Sowing Date (YYYY-MM-DD)", &form.SowingDate},
		{"Crop Types", &form.CropTypes},
		{"Farming Practice", &form.FarmingPractice},
		{"Farming Experience (years)", &form.FarmingExperience},
		{"Irrigation Source", &form.IrrigationSource},
		{"Livestock (optional)", &form.Livestock},
		{"Remarks (optional)", &form.Remarks},
	}
	for _, p := range prompts {
		v, err := prompt(in, p.label, *p.dst)
		if err != nil {
			return form, err
		}
		*p.dst = v
	}

	terms, err := prompt(in, "Accept the terms and conditions? (y/n)", "")
	if err != nil {
		return form, err
	}
	form.TermsAgreement = strings.EqualFold(terms, "y") || strings.EqualFold(terms, "yes")
	return form, nil
}

func prompt(in *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	if v := strings.TrimSpace(line); v != "" {
		return v, nil
	}
	return current, nil
}

func queryFinalizationState(ctx context.Context, c client.Client, referenceID string) {
	workflowID := submission.WorkflowID(referenceID)
	log.Printf("Querying finalization state: %s", workflowID)

	resp, err := c.QueryWorkflow(ctx, workflowID, "", workflows.QueryState)
	if err != nil {
		log.Fatalf("Failed to query workflow: %v", err)
	}

	var state models.FinalizeState
	if err := resp.Get(&state); err != nil {
		log.Fatalf("Failed to decode query result: %v", err)
	}

	stateJSON, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal state: %v", err)
	}

	log.Println("\nFinalization State:")
	fmt.Println(string(stateJSON))
}
