package server

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #sidebar { float: right; width: 220px; margin-left: 20px; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .admin { color: gray; font-style: italic; }
        .private { color: purple; }
        #activity { height: 1.2em; color: gray; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>roomchat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Name (anonymous mode)">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="roomInput" placeholder="Room" disabled>
        <button id="joinButton" onclick="enterRoom()" disabled>Join</button>
        <button id="leaveButton" onclick="leaveRoom()" disabled>Leave</button>
    </div>

    <div id="sidebar">
        <strong>Online</strong><ul id="online"></ul>
        <strong>Room</strong><ul id="members"></ul>
        <strong>Active rooms</strong><ul id="rooms"></ul>
    </div>

    <div id="messages"></div>
    <div id="activity"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <input type="text" id="recipientInput" placeholder="Private to user id (optional)" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let activityTimer = null;
        let lastActivity = 0;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const recipientInput = document.getElementById('recipientInput');
        const roomInput = document.getElementById('roomInput');
        const nameInput = document.getElementById('nameInput');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');
        const activityDiv = document.getElementById('activity');
        const controls = ['messageInput', 'recipientInput', 'roomInput', 'sendButton', 'joinButton', 'leaveButton'];

        function addLine(text, className) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            if (className) {
                line.className = className;
            }
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function showMessage(m) {
            const time = new Date(m.time).toLocaleTimeString();
            const prefix = m.isPrivate ? '[private] ' : '';
            addLine(time + ' ' + prefix + m.senderName + ': ' + m.text,
                m.isAdmin ? 'admin' : (m.isPrivate ? 'private' : ''));
        }

        function fillList(id, items) {
            const list = document.getElementById(id);
            list.replaceChildren();
            items.forEach(function(text) {
                const item = document.createElement('li');
                item.textContent = text;
                list.appendChild(item);
            });
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            controls.forEach(function(id) { document.getElementById(id).disabled = !connected; });
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ event: event, data: data || {} }));
            }
        }

        function handle(envelope) {
            const data = envelope.data;
            switch (envelope.event) {
            case 'message':
                showMessage(data);
                break;
            case 'userList':
                const names = data.users.map(function(u) { return u.name + ' (' + u.id + ')'; });
                fillList(data.room ? 'members' : 'online', names);
                break;
            case 'roomList':
                fillList('rooms', data.rooms);
                break;
            case 'activity':
                activityDiv.textContent = data.name + ' is typing...';
                clearTimeout(activityTimer);
                activityTimer = setTimeout(function() { activityDiv.textContent = ''; }, 3000);
                break;
            case 'roomHistory':
                addLine('--- history of ' + data.room + ' ---', 'admin');
                data.messages.forEach(showMessage);
                break;
            case 'privateChatHistory':
                addLine('--- private history with ' + data.peerId + ' ---', 'admin');
                data.messages.forEach(showMessage);
                break;
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const name = encodeURIComponent(nameInput.value.trim());
            ws = new WebSocket(scheme + location.host + '/ws' + (name ? '?name=' + name : ''));

            ws.onopen = function() {
                addLine('Connected to roomchat server', 'admin');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                handle(JSON.parse(event.data));
            };

            ws.onclose = function() {
                addLine('Connection closed', 'admin');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addLine('Connection error', 'admin');
                updateStatus(false);
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function enterRoom() {
            send('enterRoom', { room: roomInput.value.trim() });
        }

        function leaveRoom() {
            send('leaveRoom');
            fillList('members', []);
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            const recipient = recipientInput.value.trim();
            if (!text) {
                return;
            }
            send('message', { text: text, isPrivate: recipient !== '', recipientId: recipient });
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            } else if (Date.now() - lastActivity > 2000) {
                lastActivity = Date.now();
                send('activity');
            }
        });
    </script>
</body>
</html>`
