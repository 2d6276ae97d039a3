package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/framegrab/pkg/control"
)

func newWatchCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live status from a running framegrab",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}
			ws, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", u.String(), err)
			}
			defer ws.Close()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				ws.Close()
			}()

			return watch(ws, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "Control server host:port")
	return cmd
}

// watch prints one line per status message until the connection closes.
func watch(ws *websocket.Conn, out io.Writer) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var msg control.StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Fprintf(out, "? %s\n", data)
			continue
		}
		fmt.Fprintln(out, formatStatus(msg))
	}
}

func formatStatus(msg control.StatusMessage) string {
	p := msg.Status.Producer
	line := fmt.Sprintf("%-8s delivered=%d frame=%d name=%s open=%t",
		msg.Event, p.Delivered, p.LastFrameNumber, p.LastName, p.Open)
	if p.EmptyStreak > 0 {
		line += fmt.Sprintf(" empty=%d/%d", p.EmptyStreak, p.EmptyThreshold)
	}
	if s := msg.Status.Seek; s != nil {
		line += fmt.Sprintf(" paused=%t pending=%d", s.Paused, s.Pending)
	}
	if p.Failed {
		line += " FAILED"
	}
	return line
}
