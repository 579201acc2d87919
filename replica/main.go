package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/subosito/gotenv"
)

const defaultServerURL = "ws://localhost:8080/ws"

func main() {
	_ = gotenv.Load()
	serverURL := os.Getenv("WIDGET_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	v := newView(os.Stdout)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Connection closed:", err)
				os.Exit(0)
			}
			if err := v.handle(message); err != nil {
				log.Println("Error:", err)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		conn.Close()
		os.Exit(0)
	}()

	fmt.Println("Escribe el número de una opción, tu pregunta, /s N para elegir una sugerencia (Enter la envía), /upload archivo.pdf o 'exit' para salir.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "exit" {
			break
		}
		frames, err := v.frames(line)
		if err != nil {
			fmt.Println("!", err)
			continue
		}
		for _, f := range frames {
			payload, err := json.Marshal(f)
			if err != nil {
				log.Println("Error encoding frame:", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Println("Error sending message:", err)
				return
			}
		}
	}
}
