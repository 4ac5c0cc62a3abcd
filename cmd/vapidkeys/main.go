// Command vapidkeys prints a fresh VAPID key pair in .env format, ready to
// paste into postboard's environment.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	subscriber := flag.String("subscriber", "admin@postboard.local", "contact address sent to push services")
	flag.Parse()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatal("Failed to generate VAPID keys:", err)
	}

	fmt.Println("# Web push keys for postboard. Keep the private key secret.")
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
	fmt.Printf("VAPID_SUBSCRIBER=%s\n", *subscriber)
}
