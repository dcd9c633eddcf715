package main

import (
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/payments-backend/api"
	"github.com/vocdoni/payments-backend/db"
	"github.com/vocdoni/payments-backend/notifications"
	"github.com/vocdoni/payments-backend/notifications/smtp"
	"github.com/vocdoni/payments-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

func main() {
	log.Init("debug", "stdout", nil)
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("secret", "s", "", "API secret")
	flag.String("mongoURL", "", "The URL of the MongoDB server")
	flag.String("mongoDB", "payments", "The name of the MongoDB database")
	flag.String("stripeApiSecret", "", "Stripe API secret key")
	flag.String("stripeWebhookSecret", "", "Stripe webhook signing secret")
	flag.String("stripeDefaultPlan", "", "Stripe product id of the default plan")
	flag.String("currency", stripe.DefaultCurrency, "currency for new charges")
	flag.String("emailFromAddress", "", "email service from address")
	flag.String("emailFromName", "Payments", "email service from name")
	flag.String("smtpServer", "", "SMTP server")
	flag.Int("smtpPort", 587, "SMTP port")
	flag.String("smtpUsername", "", "SMTP username")
	flag.String("smtpPassword", "", "SMTP password")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("PAYMENTS")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	mongoURL := viper.GetString("mongoURL")
	mongoDB := viper.GetString("mongoDB")
	stripeAPISecret := viper.GetString("stripeApiSecret")
	if stripeAPISecret == "" {
		log.Fatal("stripeApiSecret is required")
	}
	stripeWebhookSecret := viper.GetString("stripeWebhookSecret")
	stripeDefaultPlan := viper.GetString("stripeDefaultPlan")
	currency := viper.GetString("currency")
	emailFromAddress := viper.GetString("emailFromAddress")
	emailFromName := viper.GetString("emailFromName")
	smtpServer := viper.GetString("smtpServer")
	smtpPort := viper.GetInt("smtpPort")
	smtpUsername := viper.GetString("smtpUsername")
	smtpPassword := viper.GetString("smtpPassword")
	// initialize the MongoDB database
	database, err := db.New(mongoURL, mongoDB)
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()
	// create the email service if the SMTP server is configured
	var mailService *smtp.Email
	if smtpServer != "" && emailFromAddress != "" {
		mailService = new(smtp.Email)
		if err := mailService.New(&smtp.Config{
			FromName:     emailFromName,
			FromAddress:  emailFromAddress,
			SMTPServer:   smtpServer,
			SMTPPort:     smtpPort,
			SMTPUsername: smtpUsername,
			SMTPPassword: smtpPassword,
		}); err != nil {
			log.Fatalf("could not create the email service: %v", err)
		}
		log.Infow("email service created", "from", emailFromAddress)
	}
	// create the payment service on top of the remote gateway
	stripeConfig := &stripe.Config{
		APIKey:        stripeAPISecret,
		WebhookSecret: stripeWebhookSecret,
		Currency:      currency,
		DefaultPlanID: stripeDefaultPlan,
	}
	var notifier notifications.NotificationService
	if mailService != nil {
		notifier = mailService
	}
	stripeService, err := stripe.NewService(stripeConfig,
		stripe.NewClient(stripeConfig), database, database, notifier)
	if err != nil {
		log.Fatalf("could not create the payment service: %v", err)
	}
	// mirror the plan catalog on startup, a failure here is not fatal
	// because the webhook keeps the catalog in sync afterwards
	if plans, err := stripeService.SyncPlans(); err != nil {
		log.Warnw("could not sync the plan catalog", "error", err)
	} else {
		log.Infow("plan catalog synced", "plans", len(plans))
	}
	// create and start the local API server
	api.New(&api.Config{
		Host:   host,
		Port:   port,
		Secret: secret,
		DB:     database,
		Stripe: stripeService,
	}).Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
